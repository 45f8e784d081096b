package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateTransactionRequestToPatch(t *testing.T) {
	var req UpdateTransactionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"30.00","goal_id":null,"occurred_on":"2026-04-02"}`), &req))

	p, err := req.ToPatch()
	require.NoError(t, err)
	require.NotNil(t, p.Amount)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(30)))
	assert.True(t, p.GoalID.Set)
	assert.Nil(t, p.GoalID.ID)
	assert.False(t, p.CategoryID.Set)
	assert.Nil(t, p.Kind)
	require.NotNil(t, p.OccurredOn)
	assert.True(t, p.OccurredOn.Equal(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)))
}

func TestCreateTransactionRequestBadDate(t *testing.T) {
	_, err := CreateTransactionRequest{Kind: "entry", Amount: decimal.NewFromInt(1), OccurredOn: "02/04/2026"}.ToDomain()
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = CreateGoalRequest{Name: "x", TargetAmount: decimal.NewFromInt(1)}.ToDomain()
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAmountsAcceptNumbersAndStrings(t *testing.T) {
	var req CreateTransactionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"entry","amount":12.5,"occurred_on":"2026-01-01"}`), &req))
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("12.5")))

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"0.10"}`), &req))
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("0.1")))
}

func TestGoalResponseDates(t *testing.T) {
	g := domain.Goal{ID: 4, Name: "Bike", Deadline: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)}
	body, err := json.Marshal(GoalListItem{GoalResponse: NewGoalResponse(g), PercentComplete: decimal.NewFromInt(75)})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"deadline":"2026-09-01"`)
	assert.Contains(t, string(body), `"percent_complete":"75"`)
}
