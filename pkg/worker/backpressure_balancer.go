package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kloros-colony/fabric/pkg/health"
	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/types"
)

// defaultProposalCooldown bounds how often the balancer will propose a
// plan fragment for the same incident, per §4.C's "rate-limited by a
// per-incident cooldown".
const defaultProposalCooldown = 5 * time.Minute

// BackpressureBalancer subscribes to QUEUE_DEPTH_SAMPLE signals
// carrying an observed p95 queue depth. When a sample crosses
// Threshold, it publishes a PLAN_FRAGMENT signal proposing a mitigation,
// at most once per incident per cooldown window.
type BackpressureBalancer struct {
	rt        *Runtime
	niche     string
	threshold float64
	cooldown  time.Duration
	logger    zerolog.Logger

	mu          sync.Mutex
	lastPropose map[string]time.Time // incident_id -> last proposal time
}

// NewBackpressureBalancer returns a BackpressureBalancer built on rt,
// proposing whenever an observed p95 exceeds threshold.
func NewBackpressureBalancer(rt *Runtime, niche string, threshold float64) *BackpressureBalancer {
	bb := &BackpressureBalancer{
		rt:          rt,
		niche:       niche,
		threshold:   threshold,
		cooldown:    defaultProposalCooldown,
		logger:      log.WithComponent("backpressure_balancer"),
		lastPropose: map[string]time.Time{},
	}
	rt.SetOnMessage(bb.OnMessage)
	return bb
}

// Start begins the underlying Runtime's dispatch loop.
func (bb *BackpressureBalancer) Start(ctx context.Context) {
	bb.rt.Start(ctx)
}

// Stop stops the underlying Runtime.
func (bb *BackpressureBalancer) Stop() {
	bb.rt.Stop()
}

// Health reports whether the underlying Runtime can still reach the
// bus proxy's egress listener — the only external dependency a
// BackpressureBalancer has.
func (bb *BackpressureBalancer) Health() health.Result {
	return bb.rt.Health(context.Background())
}

// OnMessage inspects sig.Facts["p95_ms"] and proposes a plan fragment
// when it crosses bb.threshold, unless the same incident already
// proposed within the cooldown window.
func (bb *BackpressureBalancer) OnMessage(_ string, sig types.Signal) {
	p95, ok := floatFact(sig.Facts, "p95_ms")
	if !ok || p95 < bb.threshold || sig.IncidentID == "" {
		return
	}

	now := time.Now()
	bb.mu.Lock()
	last, seen := bb.lastPropose[sig.IncidentID]
	if seen && now.Sub(last) < bb.cooldown {
		bb.mu.Unlock()
		return
	}
	bb.lastPropose[sig.IncidentID] = now
	bb.mu.Unlock()

	bb.rt.Publish(context.Background(), "PLAN_FRAGMENT", types.Signal{
		Signal:     "PLAN_FRAGMENT",
		Ecosystem:  sig.Ecosystem,
		Intensity:  1,
		IncidentID: sig.IncidentID,
		Facts: map[string]any{
			"zooid":       bb.rt.cfg.Name,
			"niche":       bb.niche,
			"p95_ms":      p95,
			"threshold":   bb.threshold,
			"proposal":    "throttle_ingress",
			"incident_id": sig.IncidentID,
		},
		TS: float64(now.UnixNano()) / 1e9,
	})
	bb.logger.Info().Str("incident_id", sig.IncidentID).Float64("p95_ms", p95).Msg("proposed plan fragment")
}
