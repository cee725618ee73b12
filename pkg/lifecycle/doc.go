/*
Package lifecycle implements the fabric's lifecycle state machine (§4.E):
pure functions that mutate a loaded registry and emit exactly one
zooid_state_change event per actual transition. None of these functions
perform I/O; callers own loading and persisting the registry around
them, and own delivering the emitted events to the bus.

Transitions:

	DORMANT   -> PROBATION  StartProbation   (phase batch assignment)
	PROBATION -> ACTIVE     Promote          (evidence aggregation selected it)
	ACTIVE    -> DORMANT    Demote           (quarantine trip, below ceiling)
	ACTIVE    -> RETIRED    Demote           (quarantine trip, at ceiling)
	any       -> RETIRED    Retire           (explicit)

Every function is a no-op — no state mutation, no event — on zooids
already in the target state or otherwise ineligible, matching the
idempotency the original source's lifecycle tests exercise directly
(re-running StartProbation against already-PROBATION zooids emits zero
events and does not duplicate batch_id).
*/
package lifecycle
