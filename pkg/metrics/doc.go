/*
Package metrics defines and registers every Prometheus metric exposed
by the colony fabric, and exposes them over HTTP for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Signal Bus: published, dropped, backlog    │          │
	│  │  Intent Router: routed, dead letters        │          │
	│  │  Worker Runtime: observations, dedupes, hb  │          │
	│  │  Registry/Lifecycle: zooids, reconcile      │          │
	│  │  Fitness Ledger: ingested, rejected, rotate │          │
	│  │  Ledger Cache: lookups, invalidations       │          │
	│  │  Lock Manager: acquisitions, reaps          │          │
	│  │  Orchestrator: ticks, baselines, promotions │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                            │          │
	│  │  - Format: Prometheus text exposition        │          │
	│  │  - Handler: promhttp.Handler()               │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Signal Bus:

	colony_signals_published_total{topic}
	colony_signals_dropped_total{topic}
	colony_subscriber_backlog{subscriber}

Intent Router:

	colony_intents_routed_total{type}
	colony_intents_dead_letters_total

Worker Runtime:

	colony_observations_emitted_total{zooid}
	colony_messages_deduped_total{zooid}
	colony_worker_heartbeats_total{zooid}

Registry / Lifecycle:

	colony_zooids_total{state}
	colony_registry_reconcile_fixes_total
	colony_registry_reconcile_cycles_total
	colony_registry_reconcile_duration_seconds
	colony_zooid_state_changes_total{from,to}
	colony_demotions_total{niche}

Fitness Ledger:

	colony_observations_ingested_total
	colony_observations_rejected_total{reason}
	colony_ledger_rotations_total

Ledger Query Cache:

	colony_ledger_cache_lookups_total{kind,outcome}
	colony_ledger_cache_invalidations_total

Lock Manager:

	colony_lock_acquisitions_total{name,outcome}
	colony_locks_reaped_total

Orchestrator:

	colony_orchestrator_tick_duration_seconds
	colony_orchestrator_ticks_total{branch}
	colony_baseline_commits_total
	colony_baseline_rollbacks_total
	colony_promotions_total{outcome}
	colony_subprocess_timeouts_total

# Usage

	timer := metrics.NewTimer()
	demoted := quarantine.CheckQuarantine(reg, rows, now, cfg, stop, onEvent)
	timer.ObserveDuration(metrics.RegistryReconcileDuration)
	for range demoted {
		metrics.DemotionsTotal.WithLabelValues(niche).Inc()
	}

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

All metrics are registered in init(); MustRegister panics on duplicate
registration, so a metric is guaranteed present before main() runs.
Labels stay low-cardinality (topic, zooid name, niche, branch, outcome)
— never an incident_id or timestamp.
*/
package metrics
