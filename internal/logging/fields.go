package logging

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldOwnerID     = "owner_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldGoalID      = "goal_id"
	FieldTransaction = "transaction_id"
	FieldDelta       = "delta"
	FieldBalance     = "balance"
	FieldAction      = "action"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentReconcile = "reconcile"
	ComponentGoals     = "goals"
	ComponentStorage   = "storage"
	ComponentActivity  = "activity"
	ComponentAMQP      = "amqp"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)
