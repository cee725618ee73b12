/*
Package types defines the core data structures shared across the colony
fabric.

The types package is the foundation of the fabric's data model. It defines
the wire-level Signal, the long-lived zooid (worker identity) record, the
niche index, the registry document that contains both, the append-only
Observation record, and the small set of JSON documents persisted by the
lock manager, intent router, and orchestrator.

# Core Types

Signal:
  - The only message type carried on the bus
  - Topic, ecosystem tag, intensity, a schema-free facts map, optional
    incident/trace correlation, timestamp
  - Never persisted; canonical-JSON encoded for the wire

Zooid:
  - A long-lived worker record: name, niche, ecosystem, genome hash,
    lifecycle state, lineage, counters, phase tracking, quarantine policy

NicheIndex / Registry:
  - Per-niche disjoint state lists and the whole-registry document

Observation:
  - The unit appended to the fitness ledger, HMAC-signed over its
    canonical JSON

LockHandle, IntentFile, BaselineManifest, Promotion, PromotionAck:
  - Wire formats for the lock manager, intent router, and orchestrator,
    matching §6 of the specification byte for byte.

All types are plain structs with JSON tags; canonicalization (sorted keys,
tight separators) lives in pkg/canon so every signer/verifier in the
fabric uses one implementation.
*/
package types
