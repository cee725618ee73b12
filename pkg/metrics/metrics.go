package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Signal Bus metrics
	SignalsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_signals_published_total",
			Help: "Total number of signals published by topic",
		},
		[]string{"topic"},
	)

	SignalsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_signals_dropped_total",
			Help: "Total number of signals dropped at the HWM by topic",
		},
		[]string{"topic"},
	)

	SubscriberBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "colony_subscriber_backlog",
			Help: "Current queue depth per subscriber",
		},
		[]string{"subscriber"},
	)

	// Intent Router metrics
	IntentsRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_intents_routed_total",
			Help: "Total number of intent files routed by type",
		},
		[]string{"type"},
	)

	IntentsDeadLettersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_intents_dead_letters_total",
			Help: "Total number of malformed intent files moved to the dead letter queue",
		},
	)

	// Worker Runtime metrics
	ObservationsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_observations_emitted_total",
			Help: "Total number of observations emitted by zooid",
		},
		[]string{"zooid"},
	)

	MessagesDedupedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_messages_deduped_total",
			Help: "Total number of signal messages dropped as duplicate incident_id",
		},
		[]string{"zooid"},
	)

	WorkerHeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_worker_heartbeats_total",
			Help: "Total number of heartbeat signals emitted by zooid",
		},
		[]string{"zooid"},
	)

	// Registry / lifecycle metrics
	ZooidsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "colony_zooids_total",
			Help: "Total number of registered zooids by lifecycle state",
		},
		[]string{"state"},
	)

	RegistryReconcileFixesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_registry_reconcile_fixes_total",
			Help: "Total number of inconsistencies repaired during registry reconciliation",
		},
	)

	RegistryReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_registry_reconcile_cycles_total",
			Help: "Total number of background registry reconciliation cycles run",
		},
	)

	RegistryReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "colony_registry_reconcile_duration_seconds",
			Help:    "Time taken for a single background registry reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ZooidStateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_zooid_state_changes_total",
			Help: "Total number of zooid lifecycle state transitions",
		},
		[]string{"from", "to"},
	)

	DemotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_demotions_total",
			Help: "Total number of quarantine-triggered demotions by niche",
		},
		[]string{"niche"},
	)

	// Fitness Ledger metrics
	ObservationsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_observations_ingested_total",
			Help: "Total number of observations appended to the fitness ledger",
		},
	)

	ObservationsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_observations_rejected_total",
			Help: "Total number of observations rejected by reason",
		},
		[]string{"reason"},
	)

	LedgerRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_ledger_rotations_total",
			Help: "Total number of fitness ledger rotations",
		},
	)

	// Ledger Query Cache metrics
	LedgerCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_ledger_cache_lookups_total",
			Help: "Total number of ledger query cache lookups by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	LedgerCacheInvalidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_ledger_cache_invalidations_total",
			Help: "Total number of ledger query cache entries invalidated on ledger append",
		},
	)

	// Lock Manager metrics
	LockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_lock_acquisitions_total",
			Help: "Total number of lock acquisitions by name and outcome",
		},
		[]string{"name", "outcome"},
	)

	LocksReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_locks_reaped_total",
			Help: "Total number of stale lock files reaped",
		},
	)

	// Orchestrator metrics
	OrchestratorTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "colony_orchestrator_tick_duration_seconds",
			Help:    "Time taken for a single orchestrator tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	OrchestratorTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_orchestrator_ticks_total",
			Help: "Total number of orchestrator ticks by branch taken",
		},
		[]string{"branch"},
	)

	BaselineCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_baseline_commits_total",
			Help: "Total number of baseline manifest commits",
		},
	)

	BaselineRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_baseline_rollbacks_total",
			Help: "Total number of baseline rollbacks",
		},
	)

	PromotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colony_promotions_total",
			Help: "Total number of promotion intents by outcome",
		},
		[]string{"outcome"},
	)

	SubprocessTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "colony_subprocess_timeouts_total",
			Help: "Total number of orchestrator-launched subprocesses killed on hard timeout",
		},
	)
)

func init() {
	prometheus.MustRegister(SignalsPublishedTotal)
	prometheus.MustRegister(SignalsDroppedTotal)
	prometheus.MustRegister(SubscriberBacklog)

	prometheus.MustRegister(IntentsRoutedTotal)
	prometheus.MustRegister(IntentsDeadLettersTotal)

	prometheus.MustRegister(ObservationsEmittedTotal)
	prometheus.MustRegister(MessagesDedupedTotal)
	prometheus.MustRegister(WorkerHeartbeatsTotal)

	prometheus.MustRegister(ZooidsTotal)
	prometheus.MustRegister(RegistryReconcileFixesTotal)
	prometheus.MustRegister(RegistryReconcileCyclesTotal)
	prometheus.MustRegister(RegistryReconcileDuration)
	prometheus.MustRegister(ZooidStateChangesTotal)
	prometheus.MustRegister(DemotionsTotal)

	prometheus.MustRegister(ObservationsIngestedTotal)
	prometheus.MustRegister(ObservationsRejectedTotal)
	prometheus.MustRegister(LedgerRotationsTotal)

	prometheus.MustRegister(LedgerCacheLookupsTotal)
	prometheus.MustRegister(LedgerCacheInvalidationsTotal)

	prometheus.MustRegister(LockAcquisitionsTotal)
	prometheus.MustRegister(LocksReapedTotal)

	prometheus.MustRegister(OrchestratorTickDuration)
	prometheus.MustRegister(OrchestratorTicksTotal)
	prometheus.MustRegister(BaselineCommitsTotal)
	prometheus.MustRegister(BaselineRollbacksTotal)
	prometheus.MustRegister(PromotionsTotal)
	prometheus.MustRegister(SubprocessTimeoutsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with the
// given label values.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
