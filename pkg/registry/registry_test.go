package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kloros-colony/fabric/pkg/types"
)

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "niche_map.json"))

	reg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Version != 0 {
		t.Fatalf("expected version 0, got %d", reg.Version)
	}
	if reg.Niches == nil || reg.Zooids == nil || reg.Genomes == nil {
		t.Fatalf("expected non-nil maps, got %+v", reg)
	}
}

func TestReconcileFixesCraftedInconsistencies(t *testing.T) {
	reg := types.NewRegistry()
	idx := reg.NicheFor("test_niche")
	idx.Active = []string{"zooid_1", "zooid_missing"}

	reg.Zooids["zooid_1"] = &types.Zooid{Name: "zooid_1", Niche: "test_niche", LifecycleState: types.Active}
	reg.Zooids["zooid_2"] = &types.Zooid{Name: "zooid_2", Niche: "test_niche", LifecycleState: types.Dormant}
	reg.Genomes["sha256:abc123"] = "zooid_1"
	reg.Genomes["sha256:dead"] = "zooid_vanished"

	m := NewManager(filepath.Join(t.TempDir(), "niche_map.json"))
	fixes := m.Reconcile(reg)

	if len(fixes) == 0 {
		t.Fatalf("expected at least one fix")
	}
	if idx.Contains("zooid_missing", types.Active) {
		t.Fatalf("expected zooid_missing removed from active list")
	}
	if len(idx.Active) != 1 {
		t.Fatalf("expected active list len 1, got %v", idx.Active)
	}
	if !idx.Contains("zooid_2", types.Dormant) {
		t.Fatalf("expected zooid_2 moved into dormant list to match its lifecycle_state")
	}
	if _, ok := reg.Genomes["sha256:dead"]; ok {
		t.Fatalf("expected orphaned genome pruned")
	}
	if _, ok := reg.Genomes["sha256:abc123"]; !ok {
		t.Fatalf("expected live genome binding retained")
	}
}

func TestSnapshotThenAtomicWriteCreatesVersionedArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "niche_map.json")
	m := NewManager(path)

	reg := types.NewRegistry()
	if err := m.SnapshotThenAtomicWrite(reg); err != nil {
		t.Fatalf("SnapshotThenAtomicWrite: %v", err)
	}
	if reg.Version != 1 {
		t.Fatalf("expected version bumped to 1, got %d", reg.Version)
	}
	firstContent, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected live file to exist: %v", err)
	}
	// Nothing existed before the first write, so there is nothing to
	// archive yet.
	if _, err := os.Stat(filepath.Join(dir, "niche_map.v1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected no archive before any prior live file existed, got err=%v", err)
	}

	reloaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Version != 1 {
		t.Fatalf("expected reloaded version 1, got %d", reloaded.Version)
	}

	reloaded.Zooids["new_zooid"] = &types.Zooid{Name: "new_zooid", Niche: "test_niche", LifecycleState: types.Dormant}
	if err := m.SnapshotThenAtomicWrite(reloaded); err != nil {
		t.Fatalf("second SnapshotThenAtomicWrite: %v", err)
	}
	if reloaded.Version != 2 {
		t.Fatalf("expected version bumped to 2, got %d", reloaded.Version)
	}

	// The second write must have archived exactly the bytes the live
	// file held before it was overwritten (the version-1 content), not
	// the newly written version-2 content.
	archived, err := os.ReadFile(filepath.Join(dir, "niche_map.v1.json"))
	if err != nil {
		t.Fatalf("expected snapshot niche_map.v1.json to exist: %v", err)
	}
	if string(archived) != string(firstContent) {
		t.Fatalf("expected archived niche_map.v1.json to match the prior live file content")
	}

	liveContent, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected live file to exist: %v", err)
	}
	if string(liveContent) == string(archived) {
		t.Fatalf("expected live file to hold the new content, not the archived prior content")
	}
	if _, err := os.Stat(filepath.Join(dir, "niche_map.v2.json")); !os.IsNotExist(err) {
		t.Fatalf("expected no niche_map.v2.json archive yet (nothing has overwritten version 2)")
	}
}

func TestSnapshotThenAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "niche_map.json"))

	if err := m.SnapshotThenAtomicWrite(types.NewRegistry()); err != nil {
		t.Fatalf("SnapshotThenAtomicWrite: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("unexpected temp file left behind: %s", e.Name())
		}
	}
}
