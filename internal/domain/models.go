package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the direction of a transaction's money movement.
type Kind string

const (
	KindEntry   Kind = "entry"
	KindExpense Kind = "expense"
)

func (k Kind) Valid() bool {
	return k == KindEntry || k == KindExpense
}

// Goal is a savings target owned by one user.
// CurrentAmount is the running total: the seed given at creation plus the
// effect of every linked, non-deleted transaction. It never goes below zero.
type Goal struct {
	ID            int64           `json:"id"`
	OwnerID       int64           `json:"owner_id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	CategoryID    *int64          `json:"category_id,omitempty"`
	Deadline      time.Time       `json:"deadline"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Transaction is a single money movement, optionally linked to a goal.
// Amount is always positive; the sign comes from Kind.
type Transaction struct {
	ID            int64           `json:"id"`
	OwnerID       int64           `json:"owner_id"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredOn    time.Time       `json:"occurred_on"`
	CategoryID    *int64          `json:"category_id,omitempty"`
	GoalID        *int64          `json:"goal_id,omitempty"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"payment_method"`
}

// Effect is the signed amount the transaction contributes to its goal.
func (t Transaction) Effect() decimal.Decimal {
	if t.Kind == KindEntry {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Validate checks the fields every stored transaction must satisfy.
func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "must be entry or expense"}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !isCents(t.Amount) {
		return &ValidationError{Field: "amount", Reason: "at most 2 decimal places"}
	}
	if !InRange(t.Amount) {
		return &ValidationError{Field: "amount", Reason: "must be below " + MaxAmount.String()}
	}
	if t.OccurredOn.IsZero() {
		return &ValidationError{Field: "occurred_on", Reason: "is required"}
	}
	if len(t.Description) > 500 {
		return &ValidationError{Field: "description", Reason: "too long (max 500 characters)"}
	}
	return nil
}

// Category is a user-defined label. Categories are managed elsewhere; this
// service only reads them.
type Category struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
}

// ActivityEntry is one audit record.
type ActivityEntry struct {
	OwnerID int64     `json:"owner_id"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

// IdempotencyRecord is a stored create request keyed by the client. Response
// is nil until the request that reserved the key commits.
type IdempotencyRecord struct {
	OwnerID       int64
	Key           string
	RequestHash   string
	TransactionID *int64
	Response      []byte
}

// NewGoal carries the owner-supplied fields for goal creation.
type NewGoal struct {
	Name          string
	TargetAmount  decimal.Decimal
	InitialAmount decimal.Decimal
	CategoryID    *int64
	Deadline      time.Time
}

// Validate checks the request against today's date. The deadline must be
// strictly after today.
func (g NewGoal) Validate(today time.Time) error {
	if strings.TrimSpace(g.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if !g.TargetAmount.IsPositive() {
		return &ValidationError{Field: "target_amount", Reason: "must be positive"}
	}
	if !isCents(g.TargetAmount) {
		return &ValidationError{Field: "target_amount", Reason: "at most 2 decimal places"}
	}
	if !InRange(g.TargetAmount) {
		return &ValidationError{Field: "target_amount", Reason: "must be below " + MaxAmount.String()}
	}
	if g.InitialAmount.IsNegative() {
		return &ValidationError{Field: "initial_amount", Reason: "must not be negative"}
	}
	if !isCents(g.InitialAmount) {
		return &ValidationError{Field: "initial_amount", Reason: "at most 2 decimal places"}
	}
	if !InRange(g.InitialAmount) {
		return &ValidationError{Field: "initial_amount", Reason: "must be below " + MaxAmount.String()}
	}
	if g.Deadline.IsZero() {
		return &ValidationError{Field: "deadline", Reason: "is required"}
	}
	if !DateOf(g.Deadline).After(DateOf(today)) {
		return &ValidationError{Field: "deadline", Reason: "must be in the future"}
	}
	return nil
}

// MaxAmount is the exclusive upper bound on every stored amount, including a
// goal's running total. NUMERIC(14,2) holds at most 12 integer digits.
var MaxAmount = decimal.New(1, 12)

// InRange reports whether d is below MaxAmount.
func InRange(d decimal.Decimal) bool {
	return d.LessThan(MaxAmount)
}

// isCents reports whether d fits the stored NUMERIC(14,2) scale.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
