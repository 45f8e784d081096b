package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Store is the persistence contract used by the services. Every lookup is
// scoped by owner; a row owned by someone else is reported as not found.
type Store interface {
	Reader

	// WithTx runs fn inside one database transaction. A non-nil error from fn
	// rolls everything back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	AppendActivity(ctx context.Context, e domain.ActivityEntry) error
	CreateCategory(ctx context.Context, ownerID int64, name string) (int64, error)
	Close()
}

type Reader interface {
	GetGoal(ctx context.Context, ownerID, id int64) (*domain.Goal, error)
	ListGoals(ctx context.Context, ownerID int64, f GoalFilter) ([]domain.Goal, error)
	GetTransaction(ctx context.Context, ownerID, id int64) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, ownerID int64, f TransactionFilter) ([]domain.Transaction, error)
	SumTransactions(ctx context.Context, ownerID int64, f SumFilter) (decimal.Decimal, error)
	GetCategory(ctx context.Context, ownerID, id int64) (*domain.Category, error)
}

// Tx is the write side. Lock* methods hold the row until the transaction ends,
// so a read-compute-write sequence on a goal balance cannot interleave with
// another one.
type Tx interface {
	LockGoal(ctx context.Context, ownerID, id int64) (*domain.Goal, error)
	LockTransaction(ctx context.Context, ownerID, id int64) (*domain.Transaction, error)

	InsertGoal(ctx context.Context, g *domain.Goal) (int64, error)
	UpdateGoalFields(ctx context.Context, g *domain.Goal) error
	DeleteGoal(ctx context.Context, ownerID, id int64) error

	// AdjustGoalAmount adds delta to the goal's current amount in place and
	// returns the stored result.
	AdjustGoalAmount(ctx context.Context, goalID int64, delta decimal.Decimal) (decimal.Decimal, error)

	InsertTransaction(ctx context.Context, t *domain.Transaction) (int64, error)
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id int64) error

	// GetIdempotencyKey returns nil, nil when the key has never been used.
	GetIdempotencyKey(ctx context.Context, ownerID int64, key string) (*domain.IdempotencyRecord, error)
	// ReserveIdempotencyKey claims the key. A key claimed by a concurrent
	// request reports domain.ErrIdempotencyConflict.
	ReserveIdempotencyKey(ctx context.Context, ownerID int64, key, requestHash string) error
	CompleteIdempotencyKey(ctx context.Context, ownerID int64, key string, transactionID int64, response []byte) error
}

// GoalFilter narrows ListGoals. Zero values mean "no constraint".
type GoalFilter struct {
	CategoryID *int64
	// ActiveOn keeps goals whose deadline is on or after the given day.
	ActiveOn *time.Time
}

// TransactionFilter narrows ListTransactions. From and To are inclusive
// bounds on occurred_on.
type TransactionFilter struct {
	Kind       *domain.Kind
	CategoryID *int64
	GoalID     *int64
	From       *time.Time
	To         *time.Time
	Limit      int
}

// SumFilter selects the transactions added up by SumTransactions.
type SumFilter struct {
	Kind   *domain.Kind
	GoalID *int64
	From   *time.Time
	To     *time.Time
}

const dateLayout = "2006-01-02"
