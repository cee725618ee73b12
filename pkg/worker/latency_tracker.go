package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kloros-colony/fabric/pkg/health"
	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/types"
)

// minLatencySamples is the evidence threshold before a Latency Tracker
// summarizes and emits, per §4.C's example behavior.
const minLatencySamples = 3

// LatencyTracker subscribes to LATENCY_SAMPLE and aggregates samples
// per incident_id. Once an incident has accumulated at least
// minLatencySamples readings, it emits a single signed observation
// carrying the median, mean, and max of that batch and drops the
// accumulator.
type LatencyTracker struct {
	rt     *Runtime
	niche  string
	logger zerolog.Logger

	mu      sync.Mutex
	batches map[string][]float64 // incident_id -> samples in ms
}

// NewLatencyTracker returns a LatencyTracker built on rt. rt must be
// configured with Topics including "LATENCY_SAMPLE".
func NewLatencyTracker(rt *Runtime, niche string) *LatencyTracker {
	lt := &LatencyTracker{
		rt:      rt,
		niche:   niche,
		logger:  log.WithComponent("latency_tracker"),
		batches: map[string][]float64{},
	}
	rt.SetOnMessage(lt.OnMessage)
	return lt
}

// Start begins the underlying Runtime's dispatch loop.
func (lt *LatencyTracker) Start(ctx context.Context) {
	lt.rt.Start(ctx)
}

// Stop stops the underlying Runtime.
func (lt *LatencyTracker) Stop() {
	lt.rt.Stop()
}

// Health reports whether the underlying Runtime can still reach the
// bus proxy's egress listener — the only external dependency a
// Latency Tracker has.
func (lt *LatencyTracker) Health() health.Result {
	return lt.rt.Health(context.Background())
}

// OnMessage accumulates one sample from sig.Facts["sample_ms"] under
// sig.IncidentID, summarizing and emitting once the batch reaches
// minLatencySamples.
func (lt *LatencyTracker) OnMessage(_ string, sig types.Signal) {
	sample, ok := floatFact(sig.Facts, "sample_ms")
	if !ok || sig.IncidentID == "" {
		return
	}

	lt.mu.Lock()
	lt.batches[sig.IncidentID] = append(lt.batches[sig.IncidentID], sample)
	batch := lt.batches[sig.IncidentID]
	ready := len(batch) >= minLatencySamples
	if ready {
		delete(lt.batches, sig.IncidentID)
	}
	lt.mu.Unlock()

	if !ready {
		return
	}

	median, mean, max := summarize(batch)
	err := lt.rt.Emit(context.Background(), map[string]any{
		"ts":          sig.TS,
		"incident_id": sig.IncidentID,
		"zooid":       lt.rt.cfg.Name,
		"niche":       lt.niche,
		"ecosystem":   sig.Ecosystem,
		"ok":          true,
		"ttr_ms":      mean,
		"extra_facts": map[string]any{
			"median_ms": median,
			"mean_ms":   mean,
			"max_ms":    max,
			"samples":   len(batch),
		},
	})
	if err != nil {
		lt.logger.Error().Err(err).Str("incident_id", sig.IncidentID).Msg("failed to emit latency summary")
	}
}

func summarize(samples []float64) (median, mean, max float64) {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	var sum float64
	for _, s := range sorted {
		sum += s
		if s > max {
			max = s
		}
	}
	mean = sum / float64(len(sorted))
	return median, mean, max
}

func floatFact(facts map[string]any, key string) (float64, bool) {
	v, ok := facts[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
