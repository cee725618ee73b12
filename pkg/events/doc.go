/*
Package events provides an in-process fan-out broker for colony
lifecycle events, distinct from pkg/bus's cross-process signal
transport. It lets a single zooid_state_change, demotion, or
orchestrator-tick event reach several local observers — the
zerolog sink, Prometheus counters, an audit trail file — without the
lifecycle, quarantine, and orchestrator packages importing any of
them directly: they only ever call an EventFunc, and callers that want
multiple independent observers wire that EventFunc to Broker.Publish.

Adapted from the teacher's in-memory event broker: the buffered
channel plus per-subscriber non-blocking send is kept as-is, only the
EventType vocabulary and Event payload shape are colony-domain.
*/
package events
