package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goal_reconciliations_total",
		Help: "Committed transaction mutations, labeled by operation",
	}, []string{"operation"})

	balanceClamps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goal_balance_clamps_total",
		Help: "Reversals that would have taken a goal balance below zero",
	})

	insufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goal_insufficient_funds_total",
		Help: "Expenses rejected because the goal balance was too low",
	})

	idempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transaction_idempotent_replays_total",
		Help: "Creates answered from a stored idempotency key",
	})

	activityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_log_failures_total",
		Help: "Activity entries that could not be recorded",
	})
)
