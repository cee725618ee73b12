package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kloros-colony/fabric/pkg/bus"
	"github.com/kloros-colony/fabric/pkg/colonyctl"
	"github.com/kloros-colony/fabric/pkg/events"
	"github.com/kloros-colony/fabric/pkg/health"
	"github.com/kloros-colony/fabric/pkg/intent"
	"github.com/kloros-colony/fabric/pkg/ledger"
	"github.com/kloros-colony/fabric/pkg/ledgercache"
	"github.com/kloros-colony/fabric/pkg/lifecycle"
	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/metrics"
	"github.com/kloros-colony/fabric/pkg/orchestrator"
	"github.com/kloros-colony/fabric/pkg/quarantine"
	"github.com/kloros-colony/fabric/pkg/registry"
	"github.com/kloros-colony/fabric/pkg/reconciler"
	"github.com/kloros-colony/fabric/pkg/secretfile"
	"github.com/kloros-colony/fabric/pkg/types"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "colonyd",
	Short: "colonyd runs the KLoROS colony control plane",
	Long: `colonyd hosts the colony fabric's control-plane components: the
signal bus proxy, the intent router, the lifecycle registry and its
quarantine monitor, and the orchestrator that gates PHASE batches,
promotions, and dream cycles.

Zooids run out-of-process as separate zooidd instances and talk to
colonyd only through the bus.`,
	RunE: runColonyd,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("data-dir", "./data", "Root directory for registry, ledger, intents, and locks")
	rootCmd.Flags().String("ingress-addr", "127.0.0.1:7601", "Bus proxy ingress address (publishers dial here)")
	rootCmd.Flags().String("egress-addr", "127.0.0.1:7602", "Bus proxy egress address (subscribers dial here)")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Metrics HTTP server address")
	rootCmd.Flags().String("ledger-key-file", "", "Path to a mode-600 file holding the HMAC signing key for fitness ledger observations (required)")
	rootCmd.Flags().Duration("reconcile-interval", 30*time.Second, "Registry reconciliation interval")
	rootCmd.Flags().Duration("intent-poll-interval", 2*time.Second, "Intent directory poll interval")
	rootCmd.Flags().Duration("quarantine-poll-interval", 5*time.Second, "Quarantine monitor poll interval")
	rootCmd.Flags().Duration("health-poll-interval", 15*time.Second, "Bus proxy liveness check poll interval")
	rootCmd.Flags().Duration("orchestrator-tick-interval", time.Minute, "Orchestrator tick interval")
	rootCmd.Flags().String("orchestration-mode", "disabled", "enabled|disabled: gates the orchestrator's tick loop")
	rootCmd.Flags().Int("quarantine-n-failures", 3, "Failures in the window that trip quarantine")
	rootCmd.Flags().Int("quarantine-window-sec", 300, "Quarantine failure-counting window, in seconds")
	rootCmd.Flags().Float64("quarantine-base-cooldown-sec", 60, "Base cooldown applied on first demotion")
	rootCmd.Flags().Int("quarantine-ceiling", 3, "Demotion count at which a zooid is retired instead of dormanted")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runColonyd(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	ingressAddr, _ := cmd.Flags().GetString("ingress-addr")
	egressAddr, _ := cmd.Flags().GetString("egress-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	ledgerKeyFile, _ := cmd.Flags().GetString("ledger-key-file")
	reconcileInterval, _ := cmd.Flags().GetDuration("reconcile-interval")
	intentPollInterval, _ := cmd.Flags().GetDuration("intent-poll-interval")
	quarantinePollInterval, _ := cmd.Flags().GetDuration("quarantine-poll-interval")
	healthPollInterval, _ := cmd.Flags().GetDuration("health-poll-interval")
	orchestratorTickInterval, _ := cmd.Flags().GetDuration("orchestrator-tick-interval")
	orchestrationMode, _ := cmd.Flags().GetString("orchestration-mode")
	nFailures, _ := cmd.Flags().GetInt("quarantine-n-failures")
	windowSec, _ := cmd.Flags().GetInt("quarantine-window-sec")
	baseCooldownSec, _ := cmd.Flags().GetFloat64("quarantine-base-cooldown-sec")
	ceiling, _ := cmd.Flags().GetInt("quarantine-ceiling")

	if ledgerKeyFile == "" {
		return fmt.Errorf("colonyd: --ledger-key-file is required")
	}
	ledgerKey, err := secretfile.Load(ledgerKeyFile)
	if err != nil {
		return fmt.Errorf("colonyd: %w", err)
	}

	logger := log.WithComponent("colonyd")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl := colonyctl.New()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	registryPath := filepath.Join(dataDir, "registry.json")
	ledgerPath := filepath.Join(dataDir, "fitness_ledger.jsonl")
	intentDir := filepath.Join(dataDir, "intents")
	intentDLQPath := filepath.Join(dataDir, "intents_dlq.jsonl")
	lockDir := filepath.Join(dataDir, "locks")
	promotionsDir := filepath.Join(dataDir, "promotions")
	ackDir := filepath.Join(dataDir, "promotions_ack")
	baselineDir := filepath.Join(dataDir, "baseline")
	phaseMarkerDir := filepath.Join(dataDir, "phase_markers")
	queryCachePath := filepath.Join(dataDir, "query_cache.db")

	ledgerCache, err := ledgercache.Open(queryCachePath)
	if err != nil {
		return fmt.Errorf("colonyd: open ledger query cache: %w", err)
	}
	defer ledgerCache.Close()

	bg, bgCtx := errgroup.WithContext(ctx)

	// Bus proxy: the only rendezvous point between colonyd and every
	// out-of-process zooid.
	proxy := bus.NewProxy(ingressAddr, egressAddr, ctl)
	bg.Go(func() error {
		if err := proxy.Run(bgCtx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("bus proxy: %w", err)
		}
		return nil
	})

	// Registry + reconciler.
	regMgr := registry.NewManager(registryPath)
	recon := reconciler.New(regMgr, reconcileInterval)
	recon.Start()
	defer recon.Stop()

	// Intent router.
	pub := bus.NewPublisher(ingressAddr, nil)
	defer pub.Close()
	router := intent.NewRouter(intentDir, intentDLQPath, pub)
	bg.Go(func() error {
		pollLoop(bgCtx, intentPollInterval, func() {
			if _, err := router.ScanOnce(bgCtx); err != nil {
				logger.Error().Err(err).Msg("intent router scan")
			}
		})
		return nil
	})

	// Fitness ledger ingest: every signed OBSERVATION on the bus is
	// appended to the ledger, keyed and verified with the key loaded
	// from --ledger-key-file. Every append drops the cached
	// RecentObservationsAll window (component J has no per-zooid/niche
	// axis to invalidate narrowly) along with the per-zooid/niche
	// aggregates affected.
	ledgerWriter := ledger.NewWriter(ledgerPath, ledgerKey)
	ledgerWriter.OnAppend = func(zooid, niche string) {
		if err := ledgerCache.InvalidateAll(); err != nil {
			logger.Error().Err(err).Msg("ledger cache: invalidate observations")
		}
		if err := ledgerCache.InvalidateZooid(zooid); err != nil {
			logger.Error().Err(err).Msg("ledger cache: invalidate zooid")
		}
		if err := ledgerCache.InvalidateNiche(niche); err != nil {
			logger.Error().Err(err).Msg("ledger cache: invalidate niche")
		}
	}
	obsSub := bus.NewSubscriber(egressAddr, func(topic string, sig types.Signal) {
		if err := ledgerWriter.Ingest(sig); err != nil {
			logger.Error().Err(err).Msg("ledger ingest")
		}
	}, "OBSERVATION")
	bg.Go(func() error {
		obsSub.Run(bgCtx)
		return nil
	})

	onEvent := func(e types.ZooidStateChangeEvent) {
		broker.PublishStateChange(e)
	}

	// Quarantine monitor.
	quarantineCfg := quarantine.Config{
		NFailures:       nFailures,
		WindowSec:       windowSec,
		BaseCooldownSec: baseCooldownSec,
		Ceiling:         ceiling,
	}
	bg.Go(func() error {
		pollLoop(bgCtx, quarantinePollInterval, func() {
			runQuarantineCheck(bgCtx, logger, regMgr, ledgerCache, ledgerPath, quarantineCfg, pub, onEvent)
		})
		return nil
	})

	// Bus proxy liveness: dials both listeners every health-poll-interval
	// and reports the result through the same component registry the
	// /health, /ready, and /live endpoints read from.
	egressCheck := health.NewTCPChecker(egressAddr)
	ingressCheck := health.NewTCPChecker(ingressAddr)
	bg.Go(func() error {
		pollLoop(bgCtx, healthPollInterval, func() {
			result := egressCheck.Check(bgCtx)
			if result.Healthy {
				if ingressResult := ingressCheck.Check(bgCtx); !ingressResult.Healthy {
					result = ingressResult
				}
			}
			metrics.UpdateComponent("bus_proxy", result.Healthy, result.Message)
		})
		return nil
	})

	// Orchestrator.
	orch, err := orchestrator.New(orchestrator.Config{
		Mode:                 orchestrationMode,
		PhaseWindowStartHour: 2,
		PhaseWindowEndHour:   4,
		PhaseMarkerDir:       phaseMarkerDir,
		LockDir:              lockDir,
		PromotionsDir:        promotionsDir,
		AckDir:               ackDir,
		BaselineDir:          baselineDir,
		ParamBounds:          orchestrator.ParamBounds{Min: map[string]float64{}, Max: map[string]float64{}},
	})
	if err != nil {
		return fmt.Errorf("colonyd: construct orchestrator: %w", err)
	}
	bg.Go(func() error {
		pollLoop(bgCtx, orchestratorTickInterval, func() {
			result := orch.Tick(bgCtx, time.Now())
			logger.Debug().Str("result", result).Msg("orchestrator tick")
		})
		return nil
	})

	metrics.RegisterComponent("bus_proxy", true, "listening")
	metrics.RegisterComponent("registry", true, "loaded")
	metrics.RegisterComponent("orchestrator", orchestrationMode == "enabled", "mode="+orchestrationMode)

	// Metrics HTTP server.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	bg.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	logger.Info().
		Str("ingress_addr", ingressAddr).
		Str("egress_addr", egressAddr).
		Str("metrics_addr", metricsAddr).
		Str("data_dir", dataDir).
		Msg("colonyd started")

	<-ctx.Done()
	logger.Info().Msg("colonyd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := bg.Wait(); err != nil {
		logger.Error().Err(err).Msg("background component exited with error")
	}

	return nil
}

// pollLoop invokes fn every interval until ctx is canceled, running fn
// once immediately first.
func pollLoop(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// runQuarantineCheck loads the registry, gathers every observation
// across all zooids in the trailing quarantine window via the cached
// RecentObservationsAll (component J) rather than re-scanning the
// whole ledger file, and demotes any ACTIVE zooid whose failure burst
// trips the configured threshold.
func runQuarantineCheck(ctx context.Context, logger zerolog.Logger, regMgr *registry.Manager, ledgerCache *ledgercache.Cache, ledgerPath string, cfg quarantine.Config, pub *bus.Publisher, onEvent lifecycle.EventFunc) {
	reg, err := regMgr.Load()
	if err != nil {
		logger.Error().Err(err).Msg("quarantine: load registry")
		return
	}

	now := float64(time.Now().UnixNano()) / 1e9
	obs, err := ledgerCache.RecentObservationsAll(ledgerPath, now, float64(cfg.WindowSec))
	if err != nil {
		logger.Error().Err(err).Msg("quarantine: read recent observations")
		return
	}

	rows := make([]quarantine.Row, 0, len(obs))
	for _, o := range obs {
		ok := o.OK
		rows = append(rows, quarantine.Row{Zooid: o.Zooid, TS: o.TS, OK: &ok})
	}

	demoted := quarantine.CheckQuarantine(reg, rows, now, cfg, func(name string) {
		logger.Warn().Str("zooid", name).Msg("quarantine tripped, zooid demoted")
	}, onEvent)

	if len(demoted) == 0 {
		return
	}
	if err := regMgr.SnapshotThenAtomicWrite(reg); err != nil {
		logger.Error().Err(err).Msg("quarantine: persist registry after demotion")
	}
}
