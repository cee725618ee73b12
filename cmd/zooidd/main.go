package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/secretfile"
	"github.com/kloros-colony/fabric/pkg/worker"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zooidd",
	Short: "zooidd runs a single colony zooid",
	Long: `zooidd hosts exactly one Capability: a zooid that subscribes to the
signal bus via colonyd's proxy, does its niche-specific work, and
emits signed observations back onto the bus.

Each zooid runs as its own process so a crash or a quarantine demotion
only takes down that one capability.`,
	RunE: runZooidd,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("kind", "", "Capability kind: latency_tracker|backpressure_balancer (required)")
	rootCmd.Flags().String("name", "", "Zooid name, e.g. lat_mon_001 (required)")
	rootCmd.Flags().String("niche", "", "Niche this zooid occupies, e.g. latency_monitoring (required)")
	rootCmd.Flags().String("ecosystem", "", "Ecosystem this zooid reports into (required)")
	rootCmd.Flags().String("ingress-addr", "127.0.0.1:7601", "Bus proxy ingress address")
	rootCmd.Flags().String("egress-addr", "127.0.0.1:7602", "Bus proxy egress address")
	rootCmd.Flags().String("signing-key-file", "", "Path to a mode-600 file holding the HMAC key this zooid signs its observations with (required)")
	rootCmd.Flags().Float64("backpressure-threshold", 500, "p95_ms threshold for backpressure_balancer")

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

func runZooidd(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	name, _ := cmd.Flags().GetString("name")
	niche, _ := cmd.Flags().GetString("niche")
	ecosystem, _ := cmd.Flags().GetString("ecosystem")
	ingressAddr, _ := cmd.Flags().GetString("ingress-addr")
	egressAddr, _ := cmd.Flags().GetString("egress-addr")
	signingKeyFile, _ := cmd.Flags().GetString("signing-key-file")
	backpressureThreshold, _ := cmd.Flags().GetFloat64("backpressure-threshold")

	if name == "" || niche == "" || ecosystem == "" || signingKeyFile == "" {
		return fmt.Errorf("zooidd: --name, --niche, --ecosystem, and --signing-key-file are required")
	}
	signingKey, err := secretfile.Load(signingKeyFile)
	if err != nil {
		return fmt.Errorf("zooidd: %w", err)
	}

	logger := log.WithZooid(name)

	topics, err := topicsFor(kind)
	if err != nil {
		return err
	}

	rt, err := worker.NewRuntime(worker.Config{
		Name:        name,
		Niche:       niche,
		Ecosystem:   ecosystem,
		EgressAddr:  egressAddr,
		IngressAddr: ingressAddr,
		Topics:      topics,
		SigningKey:  signingKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("zooidd: construct runtime: %w", err)
	}

	var cap worker.Capability
	switch kind {
	case "latency_tracker":
		cap = worker.NewLatencyTracker(rt, niche)
	case "backpressure_balancer":
		cap = worker.NewBackpressureBalancer(rt, niche, backpressureThreshold)
	default:
		return fmt.Errorf("zooidd: unknown --kind %q", kind)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cap.Start(ctx)
	logger.Info().Str("kind", kind).Strs("topics", topics).Msg("zooid started")

	<-ctx.Done()
	logger.Info().Msg("zooid shutting down")
	cap.Stop()
	time.Sleep(100 * time.Millisecond) // let in-flight publishes flush
	return nil
}

func topicsFor(kind string) ([]string, error) {
	switch kind {
	case "latency_tracker":
		return []string{"LATENCY_SAMPLE"}, nil
	case "backpressure_balancer":
		return []string{"QUEUE_DEPTH_SAMPLE"}, nil
	default:
		return nil, fmt.Errorf("zooidd: unknown --kind %q", kind)
	}
}
