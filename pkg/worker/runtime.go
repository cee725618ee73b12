package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/kloros-colony/fabric/pkg/bus"
	"github.com/kloros-colony/fabric/pkg/canon"
	"github.com/kloros-colony/fabric/pkg/colonyctl"
	"github.com/kloros-colony/fabric/pkg/health"
	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/metrics"
	"github.com/kloros-colony/fabric/pkg/types"
)

// defaultDedupeSize bounds the incident_id LRU. An incident_id older
// than this many distinct entries is treated as unseen again, matching
// the bounded-memory tradeoff described in §4.C.
const defaultDedupeSize = 4096

// defaultHeartbeatInterval is how often a Runtime emits a HEARTBEAT
// signal while running.
const defaultHeartbeatInterval = 10 * time.Second

// Capability is implemented by every concrete zooid built on Runtime.
// OnMessage is invoked for each deduplicated signal on a subscribed
// topic, after the maintenance gate and kill switch have already been
// checked by the Runtime's dispatch loop.
type Capability interface {
	Start(ctx context.Context)
	Stop()
	OnMessage(topic string, sig types.Signal)
	Health() health.Result
}

// Config configures a Runtime.
type Config struct {
	Name              string
	Niche             string
	Ecosystem         string
	EgressAddr        string // bus proxy egress, for subscribing
	IngressAddr       string // bus proxy ingress, for publishing
	Topics            []string
	SigningKey        []byte
	Ctl               *colonyctl.Controller
	DedupeSize        int
	HeartbeatInterval time.Duration
}

// Runtime is the shared machinery every zooid embeds: subscriptions,
// incident_id dedupe, heartbeat emission, and the maintenance/kill
// gate. It does not itself implement Capability — it is a building
// block concrete workers compose with their own OnMessage logic.
type Runtime struct {
	cfg    Config
	logger zerolog.Logger

	pub      *bus.Publisher
	subs     []*bus.Subscriber
	seen     *lru.Cache[string, struct{}]
	tcpCheck *health.TCPChecker

	onMessage bus.OnMessage

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewRuntime returns a Runtime. onMessage is called for every
// deduplicated signal received on any of cfg.Topics, after the
// maintenance gate and kill switch have let it through. onMessage may
// be nil and wired later with SetOnMessage — concrete workers
// typically need a *Runtime to exist before their own OnMessage method
// has a receiver to bind.
func NewRuntime(cfg Config, onMessage bus.OnMessage) (*Runtime, error) {
	if cfg.DedupeSize == 0 {
		cfg.DedupeSize = defaultDedupeSize
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Ctl == nil {
		cfg.Ctl = colonyctl.New()
	}

	seen, err := lru.New[string, struct{}](cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("worker: dedupe cache: %w", err)
	}

	return &Runtime{
		cfg:       cfg,
		logger:    log.WithZooid(cfg.Name),
		pub:       bus.NewPublisher(cfg.IngressAddr, nil),
		seen:      seen,
		onMessage: onMessage,
		tcpCheck:  health.NewTCPChecker(cfg.EgressAddr),
	}, nil
}

// Health reports whether the runtime can currently reach the bus
// proxy's egress listener, the one dependency every concrete
// Capability built on this Runtime shares.
func (r *Runtime) Health(ctx context.Context) health.Result {
	return r.tcpCheck.Check(ctx)
}

// Start subscribes to every configured topic and begins the heartbeat
// loop. It returns immediately; all work runs in background goroutines
// until Stop is called.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.stopped = make(chan struct{})
	r.mu.Unlock()

	for _, topic := range r.cfg.Topics {
		sub := bus.NewSubscriber(r.cfg.EgressAddr, r.dispatch, topic)
		r.subs = append(r.subs, sub)
		go sub.Run(runCtx)
	}

	go r.heartbeatLoop(runCtx)

	r.logger.Info().Strs("topics", r.cfg.Topics).Msg("worker runtime started")
}

// SetOnMessage sets (or replaces) the callback invoked by dispatch.
// Must be called before Start.
func (r *Runtime) SetOnMessage(onMessage bus.OnMessage) {
	r.onMessage = onMessage
}

// Stop cancels every subscription and the heartbeat loop.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	_ = r.pub.Close()
}

// dispatch is the single entry point every subscription loop calls
// into. It enforces the kill switch, the maintenance gate, and
// incident_id deduplication before handing the signal to the caller's
// onMessage.
func (r *Runtime) dispatch(topic string, sig types.Signal) {
	if r.cfg.Ctl.Killed() {
		return
	}
	if err := r.cfg.Ctl.WaitForNormalMode(context.Background()); err != nil {
		return
	}

	if sig.IncidentID != "" {
		if _, ok := r.seen.Get(sig.IncidentID); ok {
			metrics.MessagesDedupedTotal.WithLabelValues(r.cfg.Name).Inc()
			return
		}
		r.seen.Add(sig.IncidentID, struct{}{})
	}

	if r.onMessage != nil {
		r.onMessage(topic, sig)
	}
}

// heartbeatLoop publishes a HEARTBEAT signal every HeartbeatInterval
// until ctx is canceled.
func (r *Runtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.cfg.Ctl.Killed() {
				return
			}
			r.pub.Publish(ctx, "HEARTBEAT", types.Signal{
				Signal:    "HEARTBEAT",
				Ecosystem: r.cfg.Ecosystem,
				Intensity: 1,
				Trace:     uuid.NewString(),
				Facts: map[string]any{
					"zooid": r.cfg.Name,
					"niche": r.cfg.Niche,
				},
				TS: float64(time.Now().UnixNano()) / 1e9,
			})
			metrics.WorkerHeartbeatsTotal.WithLabelValues(r.cfg.Name).Inc()
		}
	}
}

// Emit signs and publishes an OBSERVATION signal built from facts,
// following emit_observation.py's canonical-JSON-then-HMAC scheme: the
// signature covers every field of facts except "sig", which is then
// added back in before the signal is published.
func (r *Runtime) Emit(ctx context.Context, facts map[string]any) error {
	signable := canon.ObservationFields(facts)
	sig, err := canon.Sign(signable, r.cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("worker: sign observation: %w", err)
	}
	signed := make(map[string]any, len(facts)+1)
	for k, v := range facts {
		signed[k] = v
	}
	signed["sig"] = sig

	r.pub.Publish(ctx, "OBSERVATION", types.Signal{
		Signal:    "OBSERVATION",
		Ecosystem: r.cfg.Ecosystem,
		Intensity: 1,
		Trace:     uuid.NewString(),
		Facts:     signed,
		TS:        float64(time.Now().UnixNano()) / 1e9,
	})
	metrics.ObservationsEmittedTotal.WithLabelValues(r.cfg.Name).Inc()
	return nil
}

// Publish sends a non-observation signal (e.g. a plan fragment
// proposal) on topic.
func (r *Runtime) Publish(ctx context.Context, topic string, sig types.Signal) {
	r.pub.Publish(ctx, topic, sig)
}
