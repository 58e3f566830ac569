// Package metrics holds the Prometheus collectors of the game service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts sessions created by Start
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bossdrop_sessions_started_total",
		Help: "The total number of game sessions started",
	})

	// SessionsSuperseded counts live sessions abandoned because their player started a new one
	SessionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bossdrop_sessions_superseded_total",
		Help: "The total number of sessions abandoned by a newer session",
	})

	// MultiplicityConflicts counts recovered duplicate live sessions
	MultiplicityConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bossdrop_session_multiplicity_conflicts_total",
		Help: "The total number of duplicate live session conflicts recovered",
	})

	// SessionTransitions counts state machine transitions by event
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bossdrop_session_transitions_total",
		Help: "The total number of session transitions by event",
	}, []string{"event"})

	// DropsAllocated counts drop rows produced by the allocator
	DropsAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bossdrop_drops_allocated_total",
		Help: "The total number of drops allocated at session start",
	})

	// BossKills counts kill-boss calls
	BossKills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bossdrop_boss_kills_total",
		Help: "The total number of boss kills recorded",
	})

	// ExpiryChecks counts fired abandon checks by outcome
	ExpiryChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bossdrop_expiry_checks_total",
		Help: "The total number of expiry checks by outcome",
	}, []string{"outcome"})

	// Transfers counts reconciliation attempts by status
	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bossdrop_transfers_total",
		Help: "The total number of token transfer reconciliations by status",
	}, []string{"status"})

	// TokensTransferred counts settled drops
	TokensTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bossdrop_tokens_transferred_total",
		Help: "The total number of drops settled on chain",
	})

	// TransferDuration measures transactor submissions
	TransferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bossdrop_transfer_duration_seconds",
		Help:    "The transfer submission duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
