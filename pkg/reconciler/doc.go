/*
Package reconciler runs a periodic background loop that loads the
lifecycle registry, repairs any invariant violations found by
pkg/registry.Reconcile, and persists the repaired document via
SnapshotThenAtomicWrite when fixes were applied. It is the backstop
against drift between a niche's state lists and each zooid's
lifecycle_state that accumulates from partial writes or external edits,
independent of the lifecycle transitions §4.E performs inline.

Adapted from the teacher's cluster reconciler: the fixed-interval
ticker loop and start/stop lifecycle are unchanged, generalized from
node/container healing to registry invariant repair.
*/
package reconciler
