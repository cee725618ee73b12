package worker

import (
	"testing"
	"time"

	"github.com/kloros-colony/fabric/pkg/types"
)

func TestBackpressureBalancerRateLimitsPerIncident(t *testing.T) {
	rt, err := NewRuntime(Config{Name: "bp_balancer_001", IngressAddr: "127.0.0.1:0"}, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	bb := NewBackpressureBalancer(rt, "backpressure", 500)
	bb.cooldown = time.Hour

	sig := types.Signal{IncidentID: "inc-1", Ecosystem: "prod_guard", Facts: map[string]any{"p95_ms": 900.0}}
	bb.OnMessage("QUEUE_DEPTH_SAMPLE", sig)

	bb.mu.Lock()
	_, proposedOnce := bb.lastPropose["inc-1"]
	bb.mu.Unlock()
	if !proposedOnce {
		t.Fatalf("expected first crossing to record a proposal")
	}

	first := bb.lastPropose["inc-1"]
	bb.OnMessage("QUEUE_DEPTH_SAMPLE", sig)
	bb.mu.Lock()
	second := bb.lastPropose["inc-1"]
	bb.mu.Unlock()
	if !second.Equal(first) {
		t.Fatalf("expected second crossing within cooldown to be suppressed")
	}
}

func TestBackpressureBalancerIgnoresBelowThreshold(t *testing.T) {
	rt, err := NewRuntime(Config{Name: "bp_balancer_001", IngressAddr: "127.0.0.1:0"}, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	bb := NewBackpressureBalancer(rt, "backpressure", 500)

	bb.OnMessage("QUEUE_DEPTH_SAMPLE", types.Signal{IncidentID: "inc-1", Facts: map[string]any{"p95_ms": 100.0}})

	bb.mu.Lock()
	_, proposed := bb.lastPropose["inc-1"]
	bb.mu.Unlock()
	if proposed {
		t.Fatalf("expected no proposal below threshold")
	}
}
