// Package activity is the append-only audit trail. Recording is best-effort:
// callers log and drop errors instead of failing the operation that produced
// the entry.
package activity

import (
	"context"
	"errors"

	"github.com/punchamoorthee/goalledger/internal/domain"
)

// Action tags written to the log.
const (
	ActionTransactionCreated = "transaction.created"
	ActionTransactionUpdated = "transaction.updated"
	ActionTransactionDeleted = "transaction.deleted"
	ActionGoalCreated        = "goal.created"
	ActionGoalUpdated        = "goal.updated"
	ActionGoalDeleted        = "goal.deleted"
)

type Recorder interface {
	Record(ctx context.Context, e domain.ActivityEntry) error
}

// Writer is the storage side of the log.
type Writer interface {
	AppendActivity(ctx context.Context, e domain.ActivityEntry) error
}

// StoreRecorder persists entries in the application database.
type StoreRecorder struct {
	w Writer
}

func NewStoreRecorder(w Writer) *StoreRecorder {
	return &StoreRecorder{w: w}
}

func (r *StoreRecorder) Record(ctx context.Context, e domain.ActivityEntry) error {
	return r.w.AppendActivity(ctx, e)
}

// Multi fans an entry out to every recorder. All recorders are attempted;
// their errors are joined.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e domain.ActivityEntry) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every entry.
type Nop struct{}

func (Nop) Record(context.Context, domain.ActivityEntry) error { return nil }
