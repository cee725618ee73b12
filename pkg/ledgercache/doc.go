/*
Package ledgercache provides a bbolt-backed read-through cache in front
of pkg/ledger's query functions, so the quarantine monitor and
orchestrator don't re-scan the whole fitness ledger file on every
tick.

Adapted from the teacher's pkg/storage BoltStore: one bbolt file, one
bucket per query kind, JSON-encoded values. Unlike BoltStore this
package caches derived aggregates rather than primary records, so
every entry is invalidated (deleted, not updated) the moment
pkg/ledger.Writer appends a row for the affected zooid or niche —
wired via Writer.OnAppend. RecentObservationsAll has no per-zooid/niche
axis, so its single cached window is dropped on every append instead.
*/
package ledgercache
