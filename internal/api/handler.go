package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/punchamoorthee/goalledger/internal/logging"
	"github.com/punchamoorthee/goalledger/internal/models"
	"github.com/punchamoorthee/goalledger/internal/service"
	"github.com/punchamoorthee/goalledger/internal/store"
)

const (
	// HeaderUserID carries the caller's owner id.
	HeaderUserID = "X-User-ID"
	// HeaderIdempotencyKey makes a transaction create safe to retry.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goalledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type TransactionService interface {
	CreateIdempotent(ctx context.Context, ownerID int64, key string, t domain.Transaction) (*service.CreateResult, error)
	Update(ctx context.Context, ownerID, id int64, patch domain.TransactionPatch) (*domain.Transaction, []service.GoalChange, error)
	Delete(ctx context.Context, ownerID, id int64) ([]service.GoalChange, error)
	Get(ctx context.Context, ownerID, id int64) (*domain.Transaction, error)
	List(ctx context.Context, ownerID int64, f store.TransactionFilter) ([]domain.Transaction, error)
}

type GoalService interface {
	Create(ctx context.Context, ownerID int64, ng domain.NewGoal) (*domain.Goal, error)
	Update(ctx context.Context, ownerID, id int64, patch domain.GoalPatch) (*domain.Goal, error)
	Delete(ctx context.Context, ownerID, id int64) error
	ListGoals(ctx context.Context, ownerID int64, q service.GoalQuery) ([]service.GoalSummary, error)
	GetGoalDetail(ctx context.Context, ownerID, id int64) (*service.GoalDetail, error)
	CheckGoalsProgress(ctx context.Context, ownerID int64) ([]service.GoalProgress, error)
}

type Handler struct {
	transactions TransactionService
	goals        GoalService
	logger       *logging.Logger
}

func NewHandler(txs TransactionService, goals GoalService, logger *logging.Logger) *Handler {
	return &Handler{transactions: txs, goals: goals, logger: logger.WithComponent(logging.ComponentHTTP)}
}

// NewRouter wires every endpoint. Everything under /api/v1 requires the
// X-User-ID header.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(logging.Middleware(h.logger), instrument)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(requireOwner)

	apiV1.HandleFunc("/transactions", h.CreateTransactionHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/transactions", h.ListTransactionsHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/transactions/{id:[0-9]+}", h.GetTransactionHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/transactions/{id:[0-9]+}", h.UpdateTransactionHandler).Methods(http.MethodPatch)
	apiV1.HandleFunc("/transactions/{id:[0-9]+}", h.DeleteTransactionHandler).Methods(http.MethodDelete)

	apiV1.HandleFunc("/goals", h.CreateGoalHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/goals", h.ListGoalsHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/goals/progress", h.GoalsProgressHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/goals/{id:[0-9]+}", h.GetGoalHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/goals/{id:[0-9]+}", h.UpdateGoalHandler).Methods(http.MethodPatch)
	apiV1.HandleFunc("/goals/{id:[0-9]+}", h.DeleteGoalHandler).Methods(http.MethodDelete)

	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument records request count and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rw.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type ownerKey struct{}

func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil || id <= 0 {
			respondWithError(w, http.StatusUnauthorized, "Missing or invalid "+HeaderUserID+" header")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerID(r *http.Request) int64 {
	id, _ := r.Context().Value(ownerKey{}).(int64)
	return id
}

// badRequest marks malformed input that never reached the domain layer.
// status defaults to 400.
type badRequest struct {
	msg    string
	status int
}

func (e *badRequest) Error() string { return e.msg }

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, &badRequest{msg: "Invalid id"}
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &badRequest{msg: "Request body too large", status: http.StatusRequestEntityTooLarge}
		}
		return &badRequest{msg: "Malformed JSON body"}
	}
	return nil
}

// respondWithDomainError maps the error taxonomy onto status codes.
func (h *Handler) respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad  *badRequest
		verr *domain.ValidationError
	)
	switch {
	case errors.As(err, &bad):
		status := bad.status
		if status == 0 {
			status = http.StatusBadRequest
		}
		respondWithError(w, status, bad.msg)
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrIdempotencyMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrIdempotencyConflict):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			logging.FieldPath, r.URL.Path,
			logging.FieldError, err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
