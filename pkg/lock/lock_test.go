package lock

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/kloros-colony/fabric/pkg/types"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	h, err := m.Acquire("orchestrator", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Meta.PID != os.Getpid() {
		t.Fatalf("expected PID %d, got %d", os.Getpid(), h.Meta.PID)
	}

	if err := m.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireRejectsWhileHeld(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	h, err := m.Acquire("phase", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer m.Release(h)

	_, err = m.Acquire("phase", time.Minute)
	if err == nil {
		t.Fatalf("expected second Acquire to fail while held")
	}
	var heldErr *ErrHeld
	if !errorsAs(err, &heldErr) {
		t.Fatalf("expected ErrHeld, got %T: %v", err, err)
	}
}

func TestAcquireAfterReleaseSucceeds(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)

	h1, err := m.Acquire("dream", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(h1); err != nil {
		t.Fatalf("Release: %v", err)
	}

	h2, err := m.Acquire("dream", time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = m.Release(h2)
}

func TestReapStaleRemovesDeadPIDLock(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)

	h, err := m.Acquire("phase", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Simulate a crashed holder: release the flock but leave a stale
	// metadata file behind with an unreachable PID.
	_ = m.Release(h)

	stale := types.LockHandle{
		Name:      "phase",
		PID:       999999999,
		Hostname:  h.Meta.Hostname,
		StartedAt: time.Now().Unix(),
		Path:      h.Meta.Path,
	}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal stale meta: %v", err)
	}
	if err := os.WriteFile(h.Meta.Path, data, 0o600); err != nil {
		t.Fatalf("write stale meta: %v", err)
	}

	reaped, err := m.ReapStale(time.Hour)
	if err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if len(reaped) != 1 || reaped[0] != "phase" {
		t.Fatalf("expected phase reaped, got %v", reaped)
	}
}

func errorsAs(err error, target **ErrHeld) bool {
	if e, ok := err.(*ErrHeld); ok {
		*target = e
		return true
	}
	return false
}
