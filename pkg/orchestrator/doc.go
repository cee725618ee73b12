/*
Package orchestrator implements the colony orchestrator (§4.H): a single
Tick function driven by an external timer, safe to call twice, that
runs at most one of four branches in priority order — a PHASE test
window, pending promotion acknowledgment, an idle D-REAM evolution
cycle, or NOOP — and always returns one of a small closed set of result
strings.

Baseline commit and rollback (§4.H.1, §4.H.2) are grounded directly on
baseline_manager.py: a manifest chain with SHA256 content hashing, a
temp-file-then-rename commit, an archived versions directory, and
MAX_VERSIONS pruning. Promotion validation and acknowledgment (§6) are
grounded on promotion_daemon.py's schema/bounds checks and ACK file
shape. The D-REAM and PHASE subprocess launches are grounded on
dream_trigger.py's lock-protected one-shot execution with a hard
timeout reported as exit code 124.

The forced-PHASE flag file is an additive input inspired by
escalation_manager.py's symptom-burst escalation concept: when present,
it makes the PHASE branch fire even outside the configured time window,
without changing Tick's return-value contract.
*/
package orchestrator
