/*
Package worker implements the shared zooid worker runtime (§4.C): a
subscription set with one receive loop per topic dispatching into a
single user callback, an incident_id dedupe LRU, a heartbeat emitter,
a kill switch and maintenance gate sourced from pkg/colonyctl, and a
signed observation emit helper built on pkg/canon.

Concrete zooids embed a Runtime and implement OnMessage; state they
need across restarts belongs in the registry or the fitness ledger,
never only in memory, per §4.C's restart-safety requirement.

Grounded on emit_observation.py's canonical-JSON signing and
ChemMessage wrapping, and on the teacher's worker agent's
Start/Stop/loop shape, generalized from container task execution to
signal dispatch.
*/
package worker
