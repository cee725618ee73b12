package reconciler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/metrics"
	"github.com/kloros-colony/fabric/pkg/registry"
)

// Reconciler periodically repairs lifecycle registry drift.
type Reconciler struct {
	mgr      *registry.Manager
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New returns a Reconciler that reconciles mgr's registry every
// interval.
func New(mgr *registry.Manager, interval time.Duration) *Reconciler {
	return &Reconciler{
		mgr:      mgr,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("registry reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcileOnce(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("registry reconciler stopped")
			return
		}
	}
}

// reconcileOnce runs a single load/reconcile/persist cycle. Only one
// cycle runs at a time, even if the caller invokes it directly between
// ticks (e.g. for tests).
func (r *Reconciler) reconcileOnce() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RegistryReconcileDuration)
		metrics.RegistryReconcileCyclesTotal.Inc()
	}()

	reg, err := r.mgr.Load()
	if err != nil {
		return err
	}

	fixes := r.mgr.Reconcile(reg)
	if len(fixes) == 0 {
		return nil
	}

	for _, fix := range fixes {
		r.logger.Warn().Str("fix", fix).Msg("repaired registry drift")
	}
	metrics.RegistryReconcileFixesTotal.Add(float64(len(fixes)))

	return r.mgr.SnapshotThenAtomicWrite(reg)
}
