package worker

import (
	"testing"

	"github.com/kloros-colony/fabric/pkg/types"
)

func TestLatencyTrackerEmitsAfterThreeSamples(t *testing.T) {
	rt, err := NewRuntime(Config{Name: "lat_mon_001", IngressAddr: "127.0.0.1:0"}, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	lt := NewLatencyTracker(rt, "latency_monitoring")

	sample := func(ms float64) types.Signal {
		return types.Signal{IncidentID: "inc-1", Ecosystem: "prod_guard", Facts: map[string]any{"sample_ms": ms}}
	}

	lt.OnMessage("LATENCY_SAMPLE", sample(10))
	lt.OnMessage("LATENCY_SAMPLE", sample(20))

	lt.mu.Lock()
	pending := len(lt.batches["inc-1"])
	lt.mu.Unlock()
	if pending != 2 {
		t.Fatalf("expected batch to hold 2 samples before threshold, got %d", pending)
	}

	lt.OnMessage("LATENCY_SAMPLE", sample(30))

	lt.mu.Lock()
	_, stillPending := lt.batches["inc-1"]
	lt.mu.Unlock()
	if stillPending {
		t.Fatalf("expected batch to be cleared once threshold reached")
	}
}

func TestSummarizeComputesMedianMeanMax(t *testing.T) {
	median, mean, max := summarize([]float64{10, 30, 20})
	if median != 20 {
		t.Fatalf("expected median 20, got %v", median)
	}
	if mean != 20 {
		t.Fatalf("expected mean 20, got %v", mean)
	}
	if max != 30 {
		t.Fatalf("expected max 30, got %v", max)
	}
}
