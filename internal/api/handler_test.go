package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/punchamoorthee/goalledger/internal/logging"
	"github.com/punchamoorthee/goalledger/internal/models"
	"github.com/punchamoorthee/goalledger/internal/service"
	"github.com/punchamoorthee/goalledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(s.Close)

	logger := logging.Discard()
	h := NewHandler(
		service.NewTransactionService(s, service.WithLogger(logger)),
		service.NewGoalService(s, service.WithLogger(logger)),
		logger,
	)
	return &testServer{t: t, router: NewRouter(h)}
}

func (ts *testServer) do(method, path, user string, body any) *httptest.ResponseRecorder {
	return ts.doWithHeaders(method, path, user, nil, body)
}

func (ts *testServer) doWithHeaders(method, path, user string, headers map[string]string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func futureDate() string {
	return time.Now().UTC().AddDate(1, 0, 0).Format(models.DateLayout)
}

func today() string {
	return time.Now().UTC().Format(models.DateLayout)
}

func (ts *testServer) createGoal(user, initial, target string) int64 {
	w := ts.do(http.MethodPost, "/api/v1/goals", user, map[string]any{
		"name": "Laptop", "target_amount": target, "initial_amount": initial, "deadline": futureDate(),
	})
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.GoalResponse](ts.t, w).ID
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		user       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"missing owner", http.MethodGet, "/api/v1/goals", "", http.StatusUnauthorized},
		{"bad owner", http.MethodGet, "/api/v1/goals", "abc", http.StatusUnauthorized},
		{"list goals", http.MethodGet, "/api/v1/goals", "1", http.StatusOK},
		{"progress", http.MethodGet, "/api/v1/goals/progress", "1", http.StatusOK},
		{"unknown goal", http.MethodGet, "/api/v1/goals/42", "1", http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/api/v1/goals/abc", "1", http.StatusNotFound},
		{"unknown transaction", http.MethodDelete, "/api/v1/transactions/42", "1", http.StatusNotFound},
		{"bad filter", http.MethodGet, "/api/v1/transactions?from=yesterday", "1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.method, tt.path, tt.user, nil)
			assert.Equal(t, tt.wantStatus, w.Code, "%s %s: %s", tt.method, tt.path, w.Body.String())
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	goal := ts.createGoal("1", "100", "200")

	w := ts.do(http.MethodPost, "/api/v1/transactions", "1", map[string]any{
		"kind": "entry", "amount": "50", "occurred_on": today(), "goal_id": goal,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.TransactionMutationResponse](t, w)
	require.NotNil(t, created.Transaction)
	require.Len(t, created.Goals, 1)
	assert.True(t, created.Goals[0].Balance.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, fmt.Sprintf("/api/v1/transactions/%d", created.Transaction.ID), w.Header().Get("Location"))

	w = ts.do(http.MethodGet, "/api/v1/goals", "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.GoalListItem](t, w)
	require.Len(t, list, 1)
	assert.True(t, list[0].PercentComplete.Equal(decimal.NewFromInt(75)))

	path := fmt.Sprintf("/api/v1/transactions/%d", created.Transaction.ID)
	w = ts.do(http.MethodPatch, path, "1", `{"amount":"30"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.TransactionMutationResponse](t, w)
	assert.True(t, updated.Goals[0].Balance.Equal(decimal.NewFromInt(130)))

	w = ts.do(http.MethodGet, path, "2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "other owners cannot see it")

	w = ts.do(http.MethodDelete, path, "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[models.TransactionMutationResponse](t, w)
	assert.Nil(t, deleted.Transaction)
	assert.True(t, deleted.Goals[0].Balance.Equal(decimal.NewFromInt(100)))
}

func TestInsufficientFunds(t *testing.T) {
	ts := newTestServer(t)
	goal := ts.createGoal("1", "100", "200")

	w := ts.do(http.MethodPost, "/api/v1/transactions", "1", map[string]any{
		"kind": "expense", "amount": "150", "occurred_on": today(), "goal_id": goal,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient funds")
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/transactions", "1", `{"kind":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/transactions", "1", map[string]any{
		"kind": "entry", "amount": "-5", "occurred_on": today(),
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "amount", decode[models.ErrorResponse](t, w).Field)

	w = ts.do(http.MethodPost, "/api/v1/goals", "1", map[string]any{
		"name": "Past", "target_amount": "10", "deadline": today(),
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "deadline", decode[models.ErrorResponse](t, w).Field)
}

func TestGoalDetailAndDelete(t *testing.T) {
	ts := newTestServer(t)
	goal := ts.createGoal("1", "0", "400")

	w := ts.do(http.MethodPost, "/api/v1/transactions", "1", map[string]any{
		"kind": "entry", "amount": "100", "occurred_on": today(),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	path := fmt.Sprintf("/api/v1/goals/%d", goal)
	w = ts.do(http.MethodGet, path, "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[models.GoalDetailResponse](t, w)
	assert.True(t, detail.CurrentValue.Equal(decimal.NewFromInt(100)))
	assert.True(t, detail.PercentAchieved.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "on_track", detail.Status)
	assert.True(t, detail.CurrentAmount.IsZero(), "stored total is unaffected by unlinked entries")

	w = ts.do(http.MethodGet, "/api/v1/goals/progress", "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ProgressCheckItem](t, w), 1)

	w = ts.do(http.MethodPatch, path, "1", `{"name":"Desktop"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Desktop", decode[models.GoalResponse](t, w).Name)

	w = ts.do(http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(http.MethodGet, path, "1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, w.Header().Get(logging.HeaderRequestID))
}

func TestIdempotentTransactionCreate(t *testing.T) {
	ts := newTestServer(t)
	goal := ts.createGoal("1", "100", "1000")
	key := map[string]string{HeaderIdempotencyKey: "a9d1c7e0-retry"}
	body := map[string]any{"kind": "entry", "amount": "50", "occurred_on": today(), "goal_id": goal}

	w := ts.doWithHeaders(http.MethodPost, "/api/v1/transactions", "1", key, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.TransactionMutationResponse](t, w)

	w = ts.doWithHeaders(http.MethodPost, "/api/v1/transactions", "1", key, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decode[models.TransactionMutationResponse](t, w)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, w.Header().Get("Location"), fmt.Sprintf("/api/v1/transactions/%d", first.Transaction.ID))

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/goals/%d", goal), "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.GoalDetailResponse](t, w).CurrentAmount.Equal(decimal.NewFromInt(150)))

	body["amount"] = "75"
	w = ts.doWithHeaders(http.MethodPost, "/api/v1/transactions", "1", key, body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "different payload")

	w = ts.do(http.MethodPost, "/api/v1/transactions", "1", body)
	require.Equal(t, http.StatusCreated, w.Code, "requests without a key are never deduplicated")
}

func TestAmountBounds(t *testing.T) {
	ts := newTestServer(t)
	goal := ts.createGoal("1", "999999999999", "999999999999")

	w := ts.do(http.MethodPost, "/api/v1/transactions", "1", map[string]any{
		"kind": "entry", "amount": "1000000000000000000000", "occurred_on": today(),
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "amount", decode[models.ErrorResponse](t, w).Field)

	w = ts.do(http.MethodPost, "/api/v1/transactions", "1", map[string]any{
		"kind": "entry", "amount": "1", "occurred_on": today(), "goal_id": goal,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/goals/%d", goal), "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.GoalDetailResponse](t, w).CurrentAmount.Equal(decimal.RequireFromString("999999999999")))
}

func TestOversizedBodyRejected(t *testing.T) {
	ts := newTestServer(t)
	huge := `{"kind":"entry","amount":"5","occurred_on":"` + today() + `","description":"` +
		strings.Repeat("x", maxBodyBytes) + `"}`

	w := ts.do(http.MethodPost, "/api/v1/transactions", "1", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())

	w = ts.do(http.MethodPost, "/api/v1/goals", "1", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
