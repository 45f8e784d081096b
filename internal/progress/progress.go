// Package progress derives read-only progress views of a goal.
//
// Two modes coexist and are kept apart on purpose. StoredProgress reads the
// goal's running total, which includes the creation seed and every linked
// transaction of either kind. RecomputedProgress ignores the running total and
// re-sums the owner's entries dated between the goal's creation and today.
// The two can disagree; list views use the first, detail and progress-check
// views use the second.
package progress

import (
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusOnTrack   Status = "on_track"
	StatusBehind    Status = "behind"
)

// percentScale is the number of decimal places reported for percentages.
const percentScale = 2

var hundred = decimal.NewFromInt(100)

// StoredProgress is the list-view progress computed from Goal.CurrentAmount.
type StoredProgress struct {
	PercentComplete decimal.Decimal
}

// RecomputedProgress is the detail-view progress computed from a fresh sum.
type RecomputedProgress struct {
	CurrentValue    decimal.Decimal
	PercentAchieved decimal.Decimal
	PercentTime     decimal.Decimal
	Status          Status
}

// Stored returns min(100, 100 * current / target).
func Stored(g domain.Goal) StoredProgress {
	return StoredProgress{PercentComplete: percentOf(g.CurrentAmount, g.TargetAmount).Round(percentScale)}
}

// Recomputed evaluates g against sum, the total of qualifying entries, as of today.
func Recomputed(g domain.Goal, sum decimal.Decimal, today time.Time) RecomputedProgress {
	achieved := percentOf(sum, g.TargetAmount)
	elapsed := PercentTime(g.CreatedAt, g.Deadline, today)
	return RecomputedProgress{
		CurrentValue:    sum,
		PercentAchieved: achieved.Round(percentScale),
		PercentTime:     elapsed.Round(percentScale),
		Status:          Classify(achieved, elapsed),
	}
}

// PercentTime is the share of the goal's window that has elapsed, in whole
// days. A deadline already passed, or a window of zero length, counts as 100.
func PercentTime(createdAt, deadline, today time.Time) decimal.Decimal {
	start, end, now := domain.DateOf(createdAt), domain.DateOf(deadline), domain.DateOf(today)
	if end.Before(now) {
		return hundred
	}
	total := days(start, end)
	if total <= 0 {
		return hundred
	}
	elapsed := days(start, now)
	if elapsed <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(elapsed).Mul(hundred).Div(decimal.NewFromInt(total))
	return decimal.Min(pct, hundred)
}

// Classify applies the status rules in order; the first match wins. A goal
// that reached its target is completed regardless of its deadline.
func Classify(percentAchieved, percentTime decimal.Decimal) Status {
	switch {
	case percentAchieved.GreaterThanOrEqual(hundred):
		return StatusCompleted
	case percentAchieved.GreaterThanOrEqual(percentTime):
		return StatusOnTrack
	default:
		return StatusBehind
	}
}

// percentOf returns min(100, 100 * part / whole), unrounded. A non-positive
// whole counts as fully achieved.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return hundred
	}
	if part.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(part.Mul(hundred).Div(whole), hundred)
}

func days(from, to time.Time) int64 {
	return int64(to.Sub(from).Hours() / 24)
}
