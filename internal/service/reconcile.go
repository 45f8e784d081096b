package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/punchamoorthee/goalledger/internal/activity"
	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/punchamoorthee/goalledger/internal/logging"
	"github.com/punchamoorthee/goalledger/internal/store"
	"github.com/shopspring/decimal"
)

// TransactionService writes transactions and keeps every linked goal's
// running total in step with them.
type TransactionService struct {
	store store.Store
	options
}

func NewTransactionService(s store.Store, opts ...Option) *TransactionService {
	return &TransactionService{store: s, options: newOptions(logging.ComponentReconcile, opts)}
}

// GoalChange is the net adjustment one reconciliation made to one goal.
type GoalChange struct {
	GoalID  int64           `json:"goal_id"`
	Delta   decimal.Decimal `json:"delta"`
	Balance decimal.Decimal `json:"balance"`
	// Clamped is set when reversing the old effect hit the zero floor, which
	// means the balance was already inconsistent before this operation.
	Clamped bool `json:"clamped,omitempty"`
}

// maxIdempotencyKey bounds the client-supplied key length.
const maxIdempotencyKey = 255

// CreateResult is what a create returns, and what is stored under an
// idempotency key so a retry can be answered without touching any goal.
type CreateResult struct {
	Transaction domain.Transaction `json:"transaction"`
	Changes     []GoalChange       `json:"changes"`
	// Replayed is set when the result was read back from an earlier request
	// with the same key.
	Replayed bool `json:"-"`
}

func (s *TransactionService) Create(ctx context.Context, ownerID int64, t domain.Transaction) (*domain.Transaction, []GoalChange, error) {
	res, err := s.CreateIdempotent(ctx, ownerID, "", t)
	if err != nil {
		return nil, nil, err
	}
	return &res.Transaction, res.Changes, nil
}

// CreateIdempotent creates t once per key. The key is reserved in the same
// database transaction that moves the goal balance, so a retried request
// either replays the stored result or fails with
// domain.ErrIdempotencyMismatch when its payload differs. An empty key
// disables the check.
func (s *TransactionService) CreateIdempotent(ctx context.Context, ownerID int64, key string, t domain.Transaction) (*CreateResult, error) {
	t.ID = 0
	t.OwnerID = ownerID
	t.OccurredOn = domain.DateOf(t.OccurredOn)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(key) > maxIdempotencyKey {
		return nil, &domain.ValidationError{Field: "Idempotency-Key", Reason: "too long (max 255 characters)"}
	}
	if err := s.checkCategory(ctx, ownerID, t.CategoryID); err != nil {
		return nil, err
	}

	var hash string
	if key != "" {
		var err error
		if hash, err = requestHash(t); err != nil {
			return nil, err
		}
	}

	var res CreateResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if key != "" {
			rec, err := tx.GetIdempotencyKey(ctx, ownerID, key)
			if err != nil {
				return err
			}
			if rec != nil {
				return replay(rec, hash, &res)
			}
			if err := tx.ReserveIdempotencyKey(ctx, ownerID, key, hash); err != nil {
				return err
			}
		}

		changes, err := s.reconcile(ctx, tx, ownerID, nil, &t)
		if err != nil {
			return err
		}
		if t.ID, err = tx.InsertTransaction(ctx, &t); err != nil {
			return err
		}
		res = CreateResult{Transaction: t, Changes: changes}

		if key != "" {
			body, err := json.Marshal(res)
			if err != nil {
				return fmt.Errorf("encode idempotent result: %w", err)
			}
			return tx.CompleteIdempotencyKey(ctx, ownerID, key, t.ID, body)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(err)
	}

	if res.Replayed {
		idempotentReplays.Inc()
		s.logger.InfoContext(ctx, "idempotent create replayed",
			logging.FieldOwnerID, ownerID,
			logging.FieldTransaction, res.Transaction.ID)
		return &res, nil
	}

	s.committed(ctx, logging.OpCreate, &res.Transaction, res.Changes)
	s.record(ctx, entries(s.now(), ownerID, activity.ActionTransactionCreated, res.Transaction.ID, res.Changes)...)
	return &res, nil
}

// Update applies patch to the stored transaction. The reversal always uses the
// stored row, never caller-supplied prior values.
func (s *TransactionService) Update(ctx context.Context, ownerID, id int64, patch domain.TransactionPatch) (*domain.Transaction, []GoalChange, error) {
	if patch.CategoryID.Set {
		if err := s.checkCategory(ctx, ownerID, patch.CategoryID.ID); err != nil {
			return nil, nil, err
		}
	}

	var next domain.Transaction
	var changes []GoalChange
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		old, err := tx.LockTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		next = patch.Apply(*old)
		if err := next.Validate(); err != nil {
			return err
		}
		if changes, err = s.reconcile(ctx, tx, ownerID, old, &next); err != nil {
			return err
		}
		return tx.UpdateTransaction(ctx, &next)
	})
	if err != nil {
		return nil, nil, s.fail(err)
	}

	s.committed(ctx, logging.OpUpdate, &next, changes)
	s.record(ctx, entries(s.now(), ownerID, activity.ActionTransactionUpdated, id, changes)...)
	return &next, changes, nil
}

func (s *TransactionService) Delete(ctx context.Context, ownerID, id int64) ([]GoalChange, error) {
	var old *domain.Transaction
	var changes []GoalChange
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if old, err = tx.LockTransaction(ctx, ownerID, id); err != nil {
			return err
		}
		if changes, err = s.reconcile(ctx, tx, ownerID, old, nil); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, ownerID, id)
	})
	if err != nil {
		return nil, s.fail(err)
	}

	s.committed(ctx, logging.OpDelete, old, changes)
	s.record(ctx, entries(s.now(), ownerID, activity.ActionTransactionDeleted, id, changes)...)
	return changes, nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, id int64) (*domain.Transaction, error) {
	return s.store.GetTransaction(ctx, ownerID, id)
}

func (s *TransactionService) List(ctx context.Context, ownerID int64, f store.TransactionFilter) ([]domain.Transaction, error) {
	return s.store.ListTransactions(ctx, ownerID, f)
}

// reconcile moves the effect of a transaction from its old state to its next
// state. old is nil on create, next is nil on delete. Goals are locked in
// ascending id order; when old and next point at the same goal the reversal
// and the application collapse into one adjustment.
//
// A goal referenced only by old that no longer exists is skipped: the
// transaction was orphaned when the goal was deleted and has nothing to
// reverse. A missing goal referenced by next is NotFound, unless it is the
// same orphaned goal the transaction already pointed at.
func (s *TransactionService) reconcile(ctx context.Context, tx store.Tx, ownerID int64, old, next *domain.Transaction) ([]GoalChange, error) {
	oldGoal, nextGoal := goalOf(old), goalOf(next)
	ids := lockOrder(oldGoal, nextGoal)
	if len(ids) == 0 {
		return nil, nil
	}

	start := make(map[int64]decimal.Decimal, len(ids))
	for _, id := range ids {
		g, err := tx.LockGoal(ctx, ownerID, id)
		if errors.Is(err, domain.ErrNotFound) && oldGoal != nil && id == *oldGoal {
			continue
		}
		if err != nil {
			return nil, err
		}
		start[id] = g.CurrentAmount
	}

	balance := make(map[int64]decimal.Decimal, len(start))
	for id, v := range start {
		balance[id] = v
	}
	clamped := map[int64]bool{}

	if oldGoal != nil {
		if cur, ok := balance[*oldGoal]; ok {
			v := cur.Sub(old.Effect())
			if v.IsNegative() {
				v = decimal.Zero
				clamped[*oldGoal] = true
			}
			balance[*oldGoal] = v
		}
	}

	if nextGoal != nil {
		if cur, ok := balance[*nextGoal]; ok {
			v := cur.Add(next.Effect())
			if v.IsNegative() {
				return nil, &domain.InsufficientFundsError{GoalID: *nextGoal, Available: cur, Requested: next.Amount}
			}
			if !domain.InRange(v) {
				return nil, &domain.ValidationError{Field: "amount", Reason: fmt.Sprintf("goal %d balance would reach %s", *nextGoal, domain.MaxAmount)}
			}
			balance[*nextGoal] = v
		}
	}

	var changes []GoalChange
	for _, id := range ids {
		v, ok := balance[id]
		if !ok {
			continue
		}
		delta := v.Sub(start[id])
		if !delta.IsZero() {
			stored, err := tx.AdjustGoalAmount(ctx, id, delta)
			if err != nil {
				return nil, err
			}
			v = stored
		}
		changes = append(changes, GoalChange{GoalID: id, Delta: delta, Balance: v, Clamped: clamped[id]})
	}
	return changes, nil
}

func (s *TransactionService) checkCategory(ctx context.Context, ownerID int64, id *int64) error {
	if id == nil {
		return nil
	}
	_, err := s.store.GetCategory(ctx, ownerID, *id)
	return err
}

func (s *TransactionService) fail(err error) error {
	if errors.Is(err, domain.ErrInsufficientFunds) {
		insufficientFunds.Inc()
	}
	return err
}

func (s *TransactionService) committed(ctx context.Context, op string, t *domain.Transaction, changes []GoalChange) {
	reconciliations.WithLabelValues(op).Inc()
	for _, c := range changes {
		if c.Clamped {
			balanceClamps.Inc()
			s.logger.WarnContext(ctx, "goal balance clamped at zero on reversal",
				logging.FieldOperation, op,
				logging.FieldOwnerID, t.OwnerID,
				logging.FieldTransaction, t.ID,
				logging.FieldGoalID, c.GoalID,
				"before", c.Balance.Sub(c.Delta).StringFixed(2),
				"after", c.Balance.StringFixed(2))
		}
		s.logger.DebugContext(ctx, "goal reconciled",
			logging.FieldOperation, op,
			logging.FieldTransaction, t.ID,
			logging.FieldGoalID, c.GoalID,
			logging.FieldDelta, c.Delta.StringFixed(2),
			logging.FieldBalance, c.Balance.StringFixed(2))
	}
}

// entries builds one activity entry per touched goal, or a single entry when
// no goal was involved.
func entries(now time.Time, ownerID int64, action string, txID int64, changes []GoalChange) []domain.ActivityEntry {
	if len(changes) == 0 {
		return []domain.ActivityEntry{{
			OwnerID: ownerID,
			Action:  action,
			Detail:  fmt.Sprintf("transaction %d", txID),
			At:      now,
		}}
	}
	out := make([]domain.ActivityEntry, 0, len(changes))
	for _, c := range changes {
		out = append(out, domain.ActivityEntry{
			OwnerID: ownerID,
			Action:  action,
			Detail: fmt.Sprintf("transaction %d: goal %d adjusted by %s to %s",
				txID, c.GoalID, c.Delta.StringFixed(2), c.Balance.StringFixed(2)),
			At: now,
		})
	}
	return out
}

// requestHash fingerprints the normalized transaction a create would store.
func requestHash(t domain.Transaction) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func replay(rec *domain.IdempotencyRecord, hash string, res *CreateResult) error {
	if rec.RequestHash != hash {
		return domain.ErrIdempotencyMismatch
	}
	if rec.Response == nil {
		return domain.ErrIdempotencyConflict
	}
	if err := json.Unmarshal(rec.Response, res); err != nil {
		return &domain.PersistenceError{Op: "decode idempotent result", Err: err}
	}
	res.Replayed = true
	return nil
}

func goalOf(t *domain.Transaction) *int64 {
	if t == nil {
		return nil
	}
	return t.GoalID
}

// lockOrder returns the distinct goal ids in ascending order.
func lockOrder(a, b *int64) []int64 {
	var ids []int64
	if a != nil {
		ids = append(ids, *a)
	}
	if b != nil && (a == nil || *a != *b) {
		ids = append(ids, *b)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
