// Package models holds the JSON payloads of the HTTP API. Dates travel as
// YYYY-MM-DD strings and amounts as decimal strings.
package models

import (
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// CreateTransactionRequest is the payload for POST /transactions.
type CreateTransactionRequest struct {
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredOn    string          `json:"occurred_on"`
	CategoryID    *int64          `json:"category_id"`
	GoalID        *int64          `json:"goal_id"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"payment_method"`
}

func (r CreateTransactionRequest) ToDomain() (domain.Transaction, error) {
	on, err := parseDate("occurred_on", r.OccurredOn)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		Kind:          domain.Kind(r.Kind),
		Amount:        r.Amount,
		OccurredOn:    on,
		CategoryID:    r.CategoryID,
		GoalID:        r.GoalID,
		Description:   r.Description,
		PaymentMethod: r.PaymentMethod,
	}, nil
}

// UpdateTransactionRequest is the payload for PATCH /transactions/{id}.
// Absent fields are left alone; category_id and goal_id may be null to clear.
type UpdateTransactionRequest struct {
	Kind          *string            `json:"kind"`
	Amount        *decimal.Decimal   `json:"amount"`
	OccurredOn    *string            `json:"occurred_on"`
	CategoryID    domain.OptionalRef `json:"category_id"`
	GoalID        domain.OptionalRef `json:"goal_id"`
	Description   *string            `json:"description"`
	PaymentMethod *string            `json:"payment_method"`
}

func (r UpdateTransactionRequest) ToPatch() (domain.TransactionPatch, error) {
	p := domain.TransactionPatch{
		Amount:        r.Amount,
		CategoryID:    r.CategoryID,
		GoalID:        r.GoalID,
		Description:   r.Description,
		PaymentMethod: r.PaymentMethod,
	}
	if r.Kind != nil {
		k := domain.Kind(*r.Kind)
		p.Kind = &k
	}
	if r.OccurredOn != nil {
		on, err := parseDate("occurred_on", *r.OccurredOn)
		if err != nil {
			return p, err
		}
		p.OccurredOn = &on
	}
	return p, nil
}

type CreateGoalRequest struct {
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	InitialAmount decimal.Decimal `json:"initial_amount"`
	CategoryID    *int64          `json:"category_id"`
	Deadline      string          `json:"deadline"`
}

func (r CreateGoalRequest) ToDomain() (domain.NewGoal, error) {
	deadline, err := parseDate("deadline", r.Deadline)
	if err != nil {
		return domain.NewGoal{}, err
	}
	return domain.NewGoal{
		Name:          r.Name,
		TargetAmount:  r.TargetAmount,
		InitialAmount: r.InitialAmount,
		CategoryID:    r.CategoryID,
		Deadline:      deadline,
	}, nil
}

type UpdateGoalRequest struct {
	Name         *string            `json:"name"`
	TargetAmount *decimal.Decimal   `json:"target_amount"`
	Deadline     *string            `json:"deadline"`
	CategoryID   domain.OptionalRef `json:"category_id"`
}

func (r UpdateGoalRequest) ToPatch() (domain.GoalPatch, error) {
	p := domain.GoalPatch{
		Name:         r.Name,
		TargetAmount: r.TargetAmount,
		CategoryID:   r.CategoryID,
	}
	if r.Deadline != nil {
		d, err := parseDate("deadline", *r.Deadline)
		if err != nil {
			return p, err
		}
		p.Deadline = &d
	}
	return p, nil
}

type TransactionResponse struct {
	ID            int64           `json:"id"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredOn    string          `json:"occurred_on"`
	CategoryID    *int64          `json:"category_id"`
	GoalID        *int64          `json:"goal_id"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"payment_method"`
}

func NewTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		Kind:          string(t.Kind),
		Amount:        t.Amount,
		OccurredOn:    t.OccurredOn.Format(DateLayout),
		CategoryID:    t.CategoryID,
		GoalID:        t.GoalID,
		Description:   t.Description,
		PaymentMethod: t.PaymentMethod,
	}
}

// GoalAdjustment reports what a transaction mutation did to one goal.
type GoalAdjustment struct {
	GoalID  int64           `json:"goal_id"`
	Delta   decimal.Decimal `json:"delta"`
	Balance decimal.Decimal `json:"current_amount"`
	Clamped bool            `json:"clamped,omitempty"`
}

// TransactionMutationResponse is returned by create, update and delete.
type TransactionMutationResponse struct {
	Transaction *TransactionResponse `json:"transaction,omitempty"`
	Goals       []GoalAdjustment     `json:"goals"`
}

type GoalResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	CategoryID    *int64          `json:"category_id"`
	Deadline      string          `json:"deadline"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewGoalResponse(g domain.Goal) GoalResponse {
	return GoalResponse{
		ID:            g.ID,
		Name:          g.Name,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		CategoryID:    g.CategoryID,
		Deadline:      g.Deadline.Format(DateLayout),
		CreatedAt:     g.CreatedAt,
	}
}

// GoalListItem is a list row in stored-value mode.
type GoalListItem struct {
	GoalResponse
	PercentComplete decimal.Decimal `json:"percent_complete"`
}

// RecomputedFields are the recomputed-mode progress values.
type RecomputedFields struct {
	CurrentValue    decimal.Decimal `json:"current_value"`
	PercentAchieved decimal.Decimal `json:"percent_achieved"`
	PercentTime     decimal.Decimal `json:"percent_time"`
	Status          string          `json:"status"`
}

type GoalDetailResponse struct {
	GoalResponse
	RecomputedFields
	Category *domain.Category `json:"category,omitempty"`
}

type ProgressCheckItem struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	Deadline     string          `json:"deadline"`
	RecomputedFields
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "is required"}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "must be a YYYY-MM-DD date"}
	}
	return t, nil
}
