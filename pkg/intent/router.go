package intent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/metrics"
	"github.com/kloros-colony/fabric/pkg/types"
)

// mapping is the closed set of intent types the router understands,
// each bound to the signal and ecosystem it is translated into. This
// merges the original source's INTENT_TO_SIGNAL table with the
// curiosity-specific discover.module/reinvestigate routes.
type mapping struct {
	signal    string
	ecosystem string
}

var intentToSignal = map[string]mapping{
	"queue.latency_spike":       {"Q_LATENCY_SPIKE", "queue_management"},
	"queue.stall":               {"Q_STALL", "queue_management"},
	"queue.congestion_forecast": {"Q_CONGESTION_FORECAST", "queue_management"},
	"queue.orphaned":            {"Q_ORPHANED_QUEUE", "queue_management"},
	"integration_fix":           {"Q_INTEGRATION_FIX", "queue_management"},
	"spica_spawn_request":       {"Q_SPICA_SPAWN", "experimentation"},
	"curiosity_investigate":     {"Q_CURIOSITY_INVESTIGATE", "introspection"},
	"curiosity_propose_fix":     {"Q_CURIOSITY_PROPOSE_FIX", "introspection"},
	"investigation_complete":    {"Q_INVESTIGATION_COMPLETE", "introspection"},
	"discover.module":           {"Q_CURIOSITY_INVESTIGATE", "introspection"},
	"reinvestigate":             {"Q_CURIOSITY_INVESTIGATE", "introspection"},
}

// curiosityTypes get their facts remapped to {question, question_id,
// priority, evidence} instead of a straight passthrough of Data.
var curiosityTypes = map[string]bool{
	"discover.module": true,
	"reinvestigate":   true,
}

// Publisher is the subset of bus.Publisher the router depends on.
type Publisher interface {
	Publish(ctx context.Context, topic string, sig types.Signal)
}

// Router scans a directory of intent files and routes each to a
// signal, deleting the file on success, on unknown type, and (after
// recording it) on malformed JSON.
type Router struct {
	intentDir string
	dlqPath   string
	pub       Publisher
}

// NewRouter returns a Router scanning intentDir and appending malformed
// files to dlqPath.
func NewRouter(intentDir, dlqPath string, pub Publisher) *Router {
	return &Router{intentDir: intentDir, dlqPath: dlqPath, pub: pub}
}

// ScanOnce processes every regular file currently in the intent
// directory and returns how many were routed.
func (r *Router) ScanOnce(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.intentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("intent: read dir: %w", err)
	}

	routed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(r.intentDir, e.Name())
		if r.routeIntent(ctx, path) {
			routed++
		}
	}
	return routed, nil
}

// routeIntent processes a single intent file, always removing it
// afterward (on success, on DLQ, or on unknown type), and reports
// whether a signal was published.
func (r *Router) routeIntent(ctx context.Context, path string) bool {
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("intent router: read failed for " + path + ": " + err.Error())
		return false
	}

	var file types.IntentFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.writeDLQ(path, data, err)
		metrics.IntentsDeadLettersTotal.Inc()
		return false
	}

	m, ok := intentToSignal[file.Type]
	if !ok {
		log.Warn("intent router: no mapping for type=" + file.Type + ", dropping")
		return false
	}

	facts := buildFacts(file)

	r.pub.Publish(ctx, m.signal, types.Signal{
		Signal:    m.signal,
		Ecosystem: m.ecosystem,
		Intensity: 1.0,
		Facts:     facts,
		TS:        float64(time.Now().UnixNano()) / 1e9,
	})

	metrics.IntentsRoutedTotal.WithLabelValues(file.Type).Inc()
	log.Info("intent router: routed " + file.Type + " -> " + m.signal)
	return true
}

func buildFacts(file types.IntentFile) map[string]any {
	if !curiosityTypes[file.Type] {
		return file.Data
	}

	facts := map[string]any{"question_id": file.ID}
	if q, ok := file.Data["question"]; ok {
		facts["question"] = q
	}
	if p, ok := file.Data["priority"]; ok {
		facts["priority"] = p
	}
	if e, ok := file.Data["evidence"]; ok {
		facts["evidence"] = e
	}
	return facts
}

// writeDLQ appends a dead-letter record capturing the raw content of a
// malformed intent file. The file is removed by the caller immediately
// after this returns, so snapshot is the only surviving copy of what was
// actually on disk.
func (r *Router) writeDLQ(intentPath string, snapshot []byte, parseErr error) {
	entry := map[string]any{
		"error":       parseErr.Error(),
		"intent_file": intentPath,
		"snapshot":    base64.StdEncoding.EncodeToString(snapshot),
		"ts":          float64(time.Now().UnixNano()) / 1e9,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Error("intent router: marshal DLQ entry: " + err.Error())
		return
	}
	f, err := os.OpenFile(r.dlqPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error("intent router: open DLQ: " + err.Error())
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Error("intent router: write DLQ: " + err.Error())
	}
}
