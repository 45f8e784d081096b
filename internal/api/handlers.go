package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/punchamoorthee/goalledger/internal/models"
	"github.com/punchamoorthee/goalledger/internal/progress"
	"github.com/punchamoorthee/goalledger/internal/service"
	"github.com/punchamoorthee/goalledger/internal/store"
)

const maxListLimit = 500

func (h *Handler) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	t, err := req.ToDomain()
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	res, err := h.transactions.CreateIdempotent(r.Context(), ownerID(r), r.Header.Get(HeaderIdempotencyKey), t)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	// a replay answers with the stored result and the original status
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%d", res.Transaction.ID))
	respondWithJSON(w, http.StatusCreated, mutationResponse(&res.Transaction, res.Changes))
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r.URL.Query())
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	txs, err := h.transactions.List(r.Context(), ownerID(r), f)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	out := make([]models.TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, models.NewTransactionResponse(t))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	t, err := h.transactions.Get(r.Context(), ownerID(r), id)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewTransactionResponse(*t))
}

func (h *Handler) UpdateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	var req models.UpdateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	updated, changes, err := h.transactions.Update(r.Context(), ownerID(r), id, patch)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, mutationResponse(updated, changes))
}

func (h *Handler) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	changes, err := h.transactions.Delete(r.Context(), ownerID(r), id)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, mutationResponse(nil, changes))
}

func (h *Handler) CreateGoalHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	ng, err := req.ToDomain()
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	g, err := h.goals.Create(r.Context(), ownerID(r), ng)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/goals/%d", g.ID))
	respondWithJSON(w, http.StatusCreated, models.NewGoalResponse(*g))
}

// ListGoalsHandler reports stored-value progress. ?active=true keeps goals
// whose deadline has not passed.
func (h *Handler) ListGoalsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var gq service.GoalQuery
	var err error
	if gq.CategoryID, err = optionalInt(q, "category_id"); err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	gq.ActiveOnly = q.Get("active") == "true"

	goals, err := h.goals.ListGoals(r.Context(), ownerID(r), gq)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	out := make([]models.GoalListItem, 0, len(goals))
	for _, g := range goals {
		out = append(out, models.GoalListItem{
			GoalResponse:    models.NewGoalResponse(g.Goal),
			PercentComplete: g.Progress.PercentComplete,
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) GetGoalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	detail, err := h.goals.GetGoalDetail(r.Context(), ownerID(r), id)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.GoalDetailResponse{
		GoalResponse:     models.NewGoalResponse(detail.Goal),
		RecomputedFields: recomputedFields(detail.Progress),
		Category:         detail.Category,
	})
}

func (h *Handler) UpdateGoalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	var req models.UpdateGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	g, err := h.goals.Update(r.Context(), ownerID(r), id, patch)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewGoalResponse(*g))
}

func (h *Handler) DeleteGoalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	if err := h.goals.Delete(r.Context(), ownerID(r), id); err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GoalsProgressHandler(w http.ResponseWriter, r *http.Request) {
	checks, err := h.goals.CheckGoalsProgress(r.Context(), ownerID(r))
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	out := make([]models.ProgressCheckItem, 0, len(checks))
	for _, c := range checks {
		out = append(out, models.ProgressCheckItem{
			ID:               c.Goal.ID,
			Name:             c.Goal.Name,
			TargetAmount:     c.Goal.TargetAmount,
			Deadline:         c.Goal.Deadline.Format(models.DateLayout),
			RecomputedFields: recomputedFields(c.Progress),
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

func mutationResponse(t *domain.Transaction, changes []service.GoalChange) models.TransactionMutationResponse {
	resp := models.TransactionMutationResponse{Goals: make([]models.GoalAdjustment, 0, len(changes))}
	if t != nil {
		tr := models.NewTransactionResponse(*t)
		resp.Transaction = &tr
	}
	for _, c := range changes {
		resp.Goals = append(resp.Goals, models.GoalAdjustment{
			GoalID:  c.GoalID,
			Delta:   c.Delta,
			Balance: c.Balance,
			Clamped: c.Clamped,
		})
	}
	return resp
}

func recomputedFields(p progress.RecomputedProgress) models.RecomputedFields {
	return models.RecomputedFields{
		CurrentValue:    p.CurrentValue,
		PercentAchieved: p.PercentAchieved,
		PercentTime:     p.PercentTime,
		Status:          string(p.Status),
	}
}

func transactionFilter(q url.Values) (store.TransactionFilter, error) {
	var f store.TransactionFilter
	var err error

	if k := q.Get("kind"); k != "" {
		kind := domain.Kind(k)
		if !kind.Valid() {
			return f, &badRequest{msg: "Invalid kind"}
		}
		f.Kind = &kind
	}
	if f.CategoryID, err = optionalInt(q, "category_id"); err != nil {
		return f, err
	}
	if f.GoalID, err = optionalInt(q, "goal_id"); err != nil {
		return f, err
	}
	if f.From, err = optionalDate(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = optionalDate(q, "to"); err != nil {
		return f, err
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, &badRequest{msg: "Invalid limit"}
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func optionalInt(q url.Values, key string) (*int64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &badRequest{msg: "Invalid " + key}
	}
	return &n, nil
}

func optionalDate(q url.Values, key string) (*time.Time, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return nil, &badRequest{msg: "Invalid " + key + ": want YYYY-MM-DD"}
	}
	return &t, nil
}
