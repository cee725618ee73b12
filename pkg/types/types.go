package types

import "time"

// LifecycleState is one of the four states a zooid can occupy.
type LifecycleState string

const (
	Dormant   LifecycleState = "DORMANT"
	Probation LifecycleState = "PROBATION"
	Active    LifecycleState = "ACTIVE"
	Retired   LifecycleState = "RETIRED"
)

// Signal is the only message type carried on the bus.
type Signal struct {
	Signal     string         `json:"signal"`
	Ecosystem  string         `json:"ecosystem"`
	Intensity  float64        `json:"intensity"`
	Facts      map[string]any `json:"facts"`
	IncidentID string         `json:"incident_id,omitempty"`
	Trace      string         `json:"trace,omitempty"`
	TS         float64        `json:"ts"`
}

// Time returns the signal's timestamp as a time.Time.
func (s Signal) Time() time.Time {
	sec := int64(s.TS)
	nsec := int64((s.TS - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Phase tracks a zooid's PHASE batch-testing history.
type Phase struct {
	Batches     []string `json:"batches"`
	Evidence    int      `json:"evidence"`
	FitnessMean float64  `json:"fitness_mean"`
}

// Policy carries quarantine backoff state.
type Policy struct {
	CooldownUntilTS float64 `json:"cooldown_until_ts"`
}

// Zooid is a long-lived worker identity record in the registry.
type Zooid struct {
	Name           string         `json:"name"`
	Niche          string         `json:"niche"`
	Ecosystem      string         `json:"ecosystem"`
	GenomeHash     string         `json:"genome_hash,omitempty"`
	LifecycleState LifecycleState `json:"lifecycle_state"`
	ParentLineage  []string       `json:"parent_lineage"`
	EnteredTS      float64        `json:"entered_ts"`
	PromotedTS     float64        `json:"promoted_ts,omitempty"`
	Demotions      int            `json:"demotions"`
	Phase          Phase          `json:"phase"`
	Policy         Policy         `json:"policy"`
}

// NicheIndex holds the four disjoint, ordered per-niche state lists.
type NicheIndex struct {
	Active    []string `json:"active"`
	Probation []string `json:"probation"`
	Dormant   []string `json:"dormant"`
	Retired   []string `json:"retired"`
}

// listFor returns a pointer to the list matching the given state, or nil.
func (n *NicheIndex) listFor(state LifecycleState) *[]string {
	switch state {
	case Active:
		return &n.Active
	case Probation:
		return &n.Probation
	case Dormant:
		return &n.Dormant
	case Retired:
		return &n.Retired
	default:
		return nil
	}
}

// Registry is the whole-document shape persisted by the lifecycle registry.
type Registry struct {
	Niches  map[string]*NicheIndex `json:"niches"`
	Zooids  map[string]*Zooid      `json:"zooids"`
	Genomes map[string]string      `json:"genomes"` // genome_hash -> zooid name
	Version int                    `json:"version"`
}

// NewRegistry returns a well-formed empty registry at version 0.
func NewRegistry() *Registry {
	return &Registry{
		Niches:  map[string]*NicheIndex{},
		Zooids:  map[string]*Zooid{},
		Genomes: map[string]string{},
		Version: 0,
	}
}

// NicheFor returns (creating if absent) the niche index for name.
func (r *Registry) NicheFor(niche string) *NicheIndex {
	idx, ok := r.Niches[niche]
	if !ok {
		idx = &NicheIndex{Active: []string{}, Probation: []string{}, Dormant: []string{}, Retired: []string{}}
		r.Niches[niche] = idx
	}
	return idx
}

// MoveToState removes name from every list in the niche and appends it to
// the list matching the target state. Calling it twice with the same
// target leaves the same members in every list: the second call removes
// the name and appends it again, moving it to the end of that list
// (callers that must keep the order check Contains first; state machine
// transitions do).
func (idx *NicheIndex) MoveToState(name string, state LifecycleState) {
	idx.remove(name)
	if dst := idx.listFor(state); dst != nil {
		*dst = append(*dst, name)
	}
}

func (idx *NicheIndex) remove(name string) {
	for _, lst := range []*[]string{&idx.Active, &idx.Probation, &idx.Dormant, &idx.Retired} {
		for i, n := range *lst {
			if n == name {
				*lst = append((*lst)[:i], (*lst)[i+1:]...)
				break
			}
		}
	}
}

// Contains reports whether name is present in the list matching state.
func (idx *NicheIndex) Contains(name string, state LifecycleState) bool {
	lst := idx.listFor(state)
	if lst == nil {
		return false
	}
	for _, n := range *lst {
		if n == name {
			return true
		}
	}
	return false
}

// Observation is the unit appended to the fitness ledger.
type Observation struct {
	TS         float64        `json:"ts"`
	IncidentID string         `json:"incident_id"`
	Zooid      string         `json:"zooid"`
	Niche      string         `json:"niche"`
	Ecosystem  string         `json:"ecosystem"`
	OK         bool           `json:"ok"`
	TTRMs      float64        `json:"ttr_ms"`
	Extra      map[string]any `json:"extra_facts,omitempty"`
	Sig        string         `json:"sig"`
}

// LockHandle is the JSON shape persisted as the contents of a lock file.
type LockHandle struct {
	Name      string `json:"name"`
	PID       int    `json:"pid"`
	Hostname  string `json:"hostname"`
	StartedAt int64  `json:"started_at"`
	Path      string `json:"path"`
}

// IntentFile is the on-disk shape consumed by the intent router.
type IntentFile struct {
	Type string         `json:"type"`
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// BaselineManifest is the versioned chain record for the baseline config.
type BaselineManifest struct {
	Version      int      `json:"version"`
	SHA256       string   `json:"sha256"`
	PreviousSHA  string   `json:"previous_sha"`
	TS           float64  `json:"ts"`
	Actor        string   `json:"actor"`
	PromotionIDs []string `json:"promotion_ids"`
}

// Promotion is a proposed configuration change, validated by the orchestrator.
type Promotion struct {
	Schema    string             `json:"schema"`
	ID        string             `json:"id"`
	Timestamp float64            `json:"timestamp"`
	Fitness   float64            `json:"fitness"`
	Changes   map[string]float64 `json:"changes"`
}

// PromotionAck is the acknowledgment file written alongside a promotion.
type PromotionAck struct {
	PromotionID     string `json:"promotion_id"`
	Accepted        bool   `json:"accepted"`
	PhaseEpoch      string `json:"phase_epoch,omitempty"`
	PhaseSHA        string `json:"phase_sha,omitempty"`
	TS              int64  `json:"ts"`
	Schema          string `json:"schema"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// ZooidStateChangeEvent is the event payload emitted by every lifecycle
// state transition (§4.E).
type ZooidStateChangeEvent struct {
	Zooid            string  `json:"zooid"`
	From             string  `json:"from"`
	To               string  `json:"to"`
	Reason           string  `json:"reason"`
	GenomeHash       string  `json:"genome_hash,omitempty"`
	ServiceAction    string  `json:"service_action,omitempty"`
	FailuresInWindow int     `json:"failures_in_window,omitempty"`
	WindowSec        int     `json:"window_sec,omitempty"`
	Demotions        int     `json:"demotions,omitempty"`
	CooldownUntilTS  float64 `json:"cooldown_until_ts,omitempty"`
}
