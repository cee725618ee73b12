package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCommitBaselineWritesManifestChain(t *testing.T) {
	dir := t.TempDir()
	mgr := NewBaselineManager(dir, 10)

	m1, err := mgr.CommitBaseline(map[string]any{"learning_rate": 0.01}, []string{"p1"}, "test")
	if err != nil {
		t.Fatalf("CommitBaseline: %v", err)
	}
	if m1.Version != 1 {
		t.Fatalf("expected version 1, got %d", m1.Version)
	}
	if m1.PreviousSHA != "" {
		t.Fatalf("expected empty previous_sha on first commit, got %q", m1.PreviousSHA)
	}

	m2, err := mgr.CommitBaseline(map[string]any{"learning_rate": 0.02}, []string{"p2"}, "test")
	if err != nil {
		t.Fatalf("CommitBaseline: %v", err)
	}
	if m2.Version != 2 {
		t.Fatalf("expected version 2, got %d", m2.Version)
	}
	if m2.PreviousSHA != m1.SHA256 {
		t.Fatalf("expected chained previous_sha, got %q want %q", m2.PreviousSHA, m1.SHA256)
	}

	if _, err := os.Stat(filepath.Join(dir, "versions", "baseline_v0001.yaml")); err != nil {
		t.Fatalf("expected archived v1 baseline: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "versions", "manifest_v0002.json")); err != nil {
		t.Fatalf("expected archived v2 manifest: %v", err)
	}
}

func TestCommitBaselinePrunesOldVersions(t *testing.T) {
	dir := t.TempDir()
	mgr := NewBaselineManager(dir, 2)

	for i := 0; i < 5; i++ {
		if _, err := mgr.CommitBaseline(map[string]any{"i": i}, nil, "test"); err != nil {
			t.Fatalf("CommitBaseline: %v", err)
		}
	}

	versions, err := mgr.listVersions()
	if err != nil {
		t.Fatalf("listVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 retained versions, got %d: %v", len(versions), versions)
	}
	if versions[0] != 5 || versions[1] != 4 {
		t.Fatalf("expected the two most recent versions retained, got %v", versions)
	}
}

func TestRollbackToVersionRestoresArchive(t *testing.T) {
	dir := t.TempDir()
	mgr := NewBaselineManager(dir, 10)

	if _, err := mgr.CommitBaseline(map[string]any{"learning_rate": 0.01}, nil, "test"); err != nil {
		t.Fatalf("CommitBaseline: %v", err)
	}
	m2, err := mgr.CommitBaseline(map[string]any{"learning_rate": 0.05}, nil, "test")
	if err != nil {
		t.Fatalf("CommitBaseline: %v", err)
	}

	if err := mgr.RollbackToVersion(1); err != nil {
		t.Fatalf("RollbackToVersion: %v", err)
	}

	current, err := mgr.currentManifest()
	if err != nil {
		t.Fatalf("currentManifest: %v", err)
	}
	if current.Version != 1 {
		t.Fatalf("expected manifest restored to version 1, got %d", current.Version)
	}
	if current.SHA256 == m2.SHA256 {
		t.Fatalf("expected restored manifest to differ from version 2")
	}
}

func TestRollbackToMissingVersionFails(t *testing.T) {
	dir := t.TempDir()
	mgr := NewBaselineManager(dir, 10)

	if err := mgr.RollbackToVersion(99); err == nil {
		t.Fatalf("expected error rolling back to a nonexistent version")
	}
}
