package progress

import (
	"testing"
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStored(t *testing.T) {
	tests := []struct {
		name    string
		current string
		target  string
		want    string
	}{
		{"three quarters", "150", "200", "75"},
		{"over target capped", "250", "200", "100"},
		{"nothing yet", "0", "200", "0"},
		{"rounded", "1", "3", "33.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stored(domain.Goal{CurrentAmount: dec(tt.current), TargetAmount: dec(tt.target)})
			assert.True(t, got.PercentComplete.Equal(dec(tt.want)), "got %s", got.PercentComplete)
		})
	}
}

func TestPercentTime(t *testing.T) {
	created := date(2026, 1, 1)
	deadline := date(2026, 1, 11)

	assert.True(t, PercentTime(created, deadline, date(2026, 1, 1)).IsZero())
	assert.True(t, PercentTime(created, deadline, date(2026, 1, 6)).Equal(dec("50")))
	assert.True(t, PercentTime(created, deadline, deadline).Equal(dec("100")))
	assert.True(t, PercentTime(created, deadline, date(2026, 2, 1)).Equal(dec("100")), "past deadline")
	assert.True(t, PercentTime(created, created, created).Equal(dec("100")), "zero-length window")

	// created_at carries a time of day; only the calendar day counts
	withClock := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	assert.True(t, PercentTime(withClock, deadline, date(2026, 1, 6)).Equal(dec("50")))
}

func TestClassifyOrder(t *testing.T) {
	assert.Equal(t, StatusCompleted, Classify(dec("100"), dec("100")))
	assert.Equal(t, StatusCompleted, Classify(dec("100"), dec("20")))
	assert.Equal(t, StatusOnTrack, Classify(dec("60"), dec("50")))
	assert.Equal(t, StatusOnTrack, Classify(dec("50"), dec("50")))
	assert.Equal(t, StatusBehind, Classify(dec("40"), dec("50")))
}

func TestRecomputedCompletedPastDeadline(t *testing.T) {
	g := domain.Goal{
		TargetAmount:  dec("500"),
		CurrentAmount: dec("0"),
		CreatedAt:     date(2026, 1, 1),
		Deadline:      date(2026, 3, 1),
	}

	got := Recomputed(g, dec("600"), date(2026, 6, 1))
	assert.Equal(t, StatusCompleted, got.Status)
	assert.True(t, got.PercentAchieved.Equal(dec("100")))
	assert.True(t, got.PercentTime.Equal(dec("100")))
	assert.True(t, got.CurrentValue.Equal(dec("600")))
}

func TestRecomputedIgnoresStoredValue(t *testing.T) {
	g := domain.Goal{
		TargetAmount:  dec("1000"),
		CurrentAmount: dec("900"),
		CreatedAt:     date(2026, 1, 1),
		Deadline:      date(2026, 1, 11),
	}

	got := Recomputed(g, dec("100"), date(2026, 1, 6))
	assert.True(t, got.PercentAchieved.Equal(dec("10")))
	assert.Equal(t, StatusBehind, got.Status)
	assert.True(t, Stored(g).PercentComplete.Equal(dec("90")))
}

func TestRecomputedRoundingDoesNotPromoteStatus(t *testing.T) {
	g := domain.Goal{
		TargetAmount: dec("100000"),
		CreatedAt:    date(2026, 1, 1),
		Deadline:     date(2026, 12, 31),
	}

	got := Recomputed(g, dec("99999"), date(2026, 1, 2))
	assert.True(t, got.PercentAchieved.Equal(dec("100")), "display value rounds up")
	assert.Equal(t, StatusOnTrack, got.Status, "classification uses the exact value")
}
