/*
Package ledger implements the fitness ledger (§4.G): an append-only
JSON-lines file of Observation rows, a writer that verifies each
incoming row's HMAC signature before appending, size-threshold
rotation, and read-only query functions over the file.

The writer is grounded on emit_observation.py's canonicalization and
signing contract (via pkg/canon) and on fitness_ledger.py's append
discipline; the query functions GetRecentFitness and
ComputeNichePressure are direct generalizations of
get_recent_fitness/compute_niche_pressure, including the 0.7/0.3
failure-rate/volume weighting and the 100-incident normalization
baseline used to cap the volume term at 1.0.
*/
package ledger
