package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionalRef distinguishes "field absent" from "field set to null" for a
// nullable reference. Set is false when the field was not supplied; Set with a
// nil ID clears the reference.
type OptionalRef struct {
	Set bool
	ID  *int64
}

// SetRef returns an OptionalRef pointing at id.
func SetRef(id int64) OptionalRef { return OptionalRef{Set: true, ID: &id} }

// ClearRef returns an OptionalRef that removes the reference.
func ClearRef() OptionalRef { return OptionalRef{Set: true} }

func (r *OptionalRef) UnmarshalJSON(b []byte) error {
	r.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		r.ID = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	r.ID = &id
	return nil
}

func (r OptionalRef) apply(cur *int64) *int64 {
	if !r.Set {
		return cur
	}
	if r.ID == nil {
		return nil
	}
	id := *r.ID
	return &id
}

// TransactionPatch is a partial update. Nil fields keep their stored value.
type TransactionPatch struct {
	Kind          *Kind
	Amount        *decimal.Decimal
	OccurredOn    *time.Time
	CategoryID    OptionalRef
	GoalID        OptionalRef
	Description   *string
	PaymentMethod *string
}

// Apply returns a copy of t with the patch applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.OccurredOn != nil {
		t.OccurredOn = DateOf(*p.OccurredOn)
	}
	t.CategoryID = p.CategoryID.apply(t.CategoryID)
	t.GoalID = p.GoalID.apply(t.GoalID)
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}
	return t
}

// GoalPatch edits the owner-controlled fields of a goal. CurrentAmount is not
// editable here; it only moves through reconciliation.
type GoalPatch struct {
	Name         *string
	TargetAmount *decimal.Decimal
	Deadline     *time.Time
	CategoryID   OptionalRef
}

func (p GoalPatch) Validate(today time.Time) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.TargetAmount != nil && !p.TargetAmount.IsPositive() {
		return &ValidationError{Field: "target_amount", Reason: "must be positive"}
	}
	if p.TargetAmount != nil && !isCents(*p.TargetAmount) {
		return &ValidationError{Field: "target_amount", Reason: "at most 2 decimal places"}
	}
	if p.TargetAmount != nil && !InRange(*p.TargetAmount) {
		return &ValidationError{Field: "target_amount", Reason: "must be below " + MaxAmount.String()}
	}
	if p.Deadline != nil && !DateOf(*p.Deadline).After(DateOf(today)) {
		return &ValidationError{Field: "deadline", Reason: "must be in the future"}
	}
	return nil
}

func (p GoalPatch) Apply(g Goal) Goal {
	if p.Name != nil {
		g.Name = strings.TrimSpace(*p.Name)
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.Deadline != nil {
		g.Deadline = DateOf(*p.Deadline)
	}
	g.CategoryID = p.CategoryID.apply(g.CategoryID)
	return g
}
