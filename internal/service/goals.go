package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/punchamoorthee/goalledger/internal/activity"
	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/punchamoorthee/goalledger/internal/logging"
	"github.com/punchamoorthee/goalledger/internal/progress"
	"github.com/punchamoorthee/goalledger/internal/store"
	"golang.org/x/sync/errgroup"
)

// progressWorkers bounds the concurrent sum queries issued by CheckGoalsProgress.
const progressWorkers = 4

// GoalService owns goal CRUD and the progress views. It never moves
// CurrentAmount after creation; only TransactionService does.
type GoalService struct {
	store store.Store
	options
}

func NewGoalService(s store.Store, opts ...Option) *GoalService {
	return &GoalService{store: s, options: newOptions(logging.ComponentGoals, opts)}
}

// GoalSummary is a list row: stored-value progress.
type GoalSummary struct {
	Goal     domain.Goal
	Progress progress.StoredProgress
}

// GoalProgress is a goal evaluated in recomputed mode.
type GoalProgress struct {
	Goal     domain.Goal
	Progress progress.RecomputedProgress
}

// GoalDetail adds the resolved category to GoalProgress.
type GoalDetail struct {
	GoalProgress
	Category *domain.Category
}

// Create stores a new goal seeded with the initial amount.
func (s *GoalService) Create(ctx context.Context, ownerID int64, ng domain.NewGoal) (*domain.Goal, error) {
	if err := ng.Validate(s.today()); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, ownerID, ng.CategoryID); err != nil {
		return nil, err
	}

	g := domain.Goal{
		OwnerID:       ownerID,
		Name:          strings.TrimSpace(ng.Name),
		TargetAmount:  ng.TargetAmount,
		CurrentAmount: ng.InitialAmount,
		CategoryID:    ng.CategoryID,
		Deadline:      domain.DateOf(ng.Deadline),
		CreatedAt:     s.now().UTC(),
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		g.ID, err = tx.InsertGoal(ctx, &g)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "goal created", logging.FieldOwnerID, ownerID, logging.FieldGoalID, g.ID)
	s.record(ctx, domain.ActivityEntry{
		OwnerID: ownerID,
		Action:  activity.ActionGoalCreated,
		Detail:  fmt.Sprintf("goal %d %q seeded with %s", g.ID, g.Name, g.CurrentAmount.StringFixed(2)),
		At:      s.now(),
	})
	return &g, nil
}

// Update edits name, target, deadline and category under the goal's row lock,
// so it cannot interleave with a reconciliation on the same goal.
func (s *GoalService) Update(ctx context.Context, ownerID, id int64, patch domain.GoalPatch) (*domain.Goal, error) {
	if err := patch.Validate(s.today()); err != nil {
		return nil, err
	}
	if patch.CategoryID.Set {
		if err := s.checkCategory(ctx, ownerID, patch.CategoryID.ID); err != nil {
			return nil, err
		}
	}

	var g domain.Goal
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		cur, err := tx.LockGoal(ctx, ownerID, id)
		if err != nil {
			return err
		}
		g = patch.Apply(*cur)
		return tx.UpdateGoalFields(ctx, &g)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.ActivityEntry{
		OwnerID: ownerID,
		Action:  activity.ActionGoalUpdated,
		Detail:  fmt.Sprintf("goal %d updated", id),
		At:      s.now(),
	})
	return &g, nil
}

// Delete removes the goal. Linked transactions are left in place and keep
// their goal_id.
func (s *GoalService) Delete(ctx context.Context, ownerID, id int64) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockGoal(ctx, ownerID, id); err != nil {
			return err
		}
		return tx.DeleteGoal(ctx, ownerID, id)
	})
	if err != nil {
		return err
	}

	s.record(ctx, domain.ActivityEntry{
		OwnerID: ownerID,
		Action:  activity.ActionGoalDeleted,
		Detail:  fmt.Sprintf("goal %d deleted", id),
		At:      s.now(),
	})
	return nil
}

// GoalQuery narrows ListGoals.
type GoalQuery struct {
	CategoryID *int64
	// ActiveOnly keeps goals whose deadline is today or later, by the
	// service clock.
	ActiveOnly bool
}

// ListGoals returns the owner's goals with stored-value progress.
func (s *GoalService) ListGoals(ctx context.Context, ownerID int64, q GoalQuery) ([]GoalSummary, error) {
	f := store.GoalFilter{CategoryID: q.CategoryID}
	if q.ActiveOnly {
		today := s.today()
		f.ActiveOn = &today
	}
	goals, err := s.store.ListGoals(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	out := make([]GoalSummary, 0, len(goals))
	for _, g := range goals {
		out = append(out, GoalSummary{Goal: g, Progress: progress.Stored(g)})
	}
	return out, nil
}

// GetGoalDetail evaluates one goal in recomputed mode.
func (s *GoalService) GetGoalDetail(ctx context.Context, ownerID, id int64) (*GoalDetail, error) {
	g, err := s.store.GetGoal(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	today := s.today()
	p, err := s.evaluate(ctx, *g, today)
	if err != nil {
		return nil, err
	}

	detail := &GoalDetail{GoalProgress: p}
	if g.CategoryID != nil {
		c, err := s.store.GetCategory(ctx, ownerID, *g.CategoryID)
		switch {
		case err == nil:
			detail.Category = c
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}
	return detail, nil
}

// CheckGoalsProgress evaluates every goal whose deadline is today or later.
func (s *GoalService) CheckGoalsProgress(ctx context.Context, ownerID int64) ([]GoalProgress, error) {
	today := s.today()
	goals, err := s.store.ListGoals(ctx, ownerID, store.GoalFilter{ActiveOn: &today})
	if err != nil {
		return nil, err
	}

	out := make([]GoalProgress, len(goals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(progressWorkers)
	for i, goal := range goals {
		i, goal := i, goal
		g.Go(func() error {
			p, err := s.evaluate(gctx, goal, today)
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// evaluate sums the owner's entries dated from the goal's creation day up to
// today. The sum is not restricted to transactions linked to the goal.
func (s *GoalService) evaluate(ctx context.Context, g domain.Goal, today time.Time) (GoalProgress, error) {
	entry := domain.KindEntry
	from := domain.DateOf(g.CreatedAt)
	sum, err := s.store.SumTransactions(ctx, g.OwnerID, store.SumFilter{Kind: &entry, From: &from, To: &today})
	if err != nil {
		return GoalProgress{}, err
	}
	return GoalProgress{Goal: g, Progress: progress.Recomputed(g, sum, today)}, nil
}

func (s *GoalService) checkCategory(ctx context.Context, ownerID int64, id *int64) error {
	if id == nil {
		return nil
	}
	_, err := s.store.GetCategory(ctx, ownerID, *id)
	return err
}
