package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kloros-colony/fabric/pkg/types"
)

// Manager owns a registry document at a fixed path plus its versioned
// snapshot archive, both rooted in the same directory.
type Manager struct {
	path string
}

// NewManager returns a Manager persisting to path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load parses the registry file. A missing file yields a well-formed
// empty registry at version 0, matching the original source's contract.
func (m *Manager) Load() (*types.Registry, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewRegistry(), nil
		}
		return nil, fmt.Errorf("registry: read %s: %w", m.path, err)
	}

	var reg types.Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", m.path, err)
	}
	if reg.Niches == nil {
		reg.Niches = map[string]*types.NicheIndex{}
	}
	if reg.Zooids == nil {
		reg.Zooids = map[string]*types.Zooid{}
	}
	if reg.Genomes == nil {
		reg.Genomes = map[string]string{}
	}
	return &reg, nil
}

// Reconcile enforces the registry's cross-reference invariants in place
// and returns a description of each fix applied.
func (m *Manager) Reconcile(reg *types.Registry) []string {
	var fixes []string

	for nicheName, idx := range reg.Niches {
		for _, state := range []types.LifecycleState{types.Active, types.Probation, types.Dormant, types.Retired} {
			for _, name := range snapshotList(idx, state) {
				if _, ok := reg.Zooids[name]; !ok {
					idx.MoveToState(name, "") // remove from every list, place in none
					fixes = append(fixes, fmt.Sprintf("removed unknown zooid %q from niche %q state %s", name, nicheName, state))
				}
			}
		}
	}

	for name, z := range reg.Zooids {
		idx := reg.NicheFor(z.Niche)
		if !idx.Contains(name, z.LifecycleState) {
			idx.MoveToState(name, z.LifecycleState)
			fixes = append(fixes, fmt.Sprintf("moved zooid %q into niche %q state %s to match lifecycle_state", name, z.Niche, z.LifecycleState))
		}
	}

	for hash, zooid := range reg.Genomes {
		if _, ok := reg.Zooids[zooid]; !ok {
			delete(reg.Genomes, hash)
			fixes = append(fixes, fmt.Sprintf("pruned genome %q bound to missing zooid %q", hash, zooid))
		}
	}

	return fixes
}

func snapshotList(idx *types.NicheIndex, state types.LifecycleState) []string {
	var src []string
	switch state {
	case types.Active:
		src = idx.Active
	case types.Probation:
		src = idx.Probation
	case types.Dormant:
		src = idx.Dormant
	case types.Retired:
		src = idx.Retired
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// SnapshotThenAtomicWrite copies the current live file to a
// version-stamped snapshot path next to it (named after the version the
// live file currently holds, before this write), then increments
// reg.Version and atomically replaces the live file via temp-write,
// fsync, rename. The rename is the only observable state change. A
// fresh registry with no prior live file has nothing to archive, so the
// first write produces no snapshot.
func (m *Manager) SnapshotThenAtomicWrite(reg *types.Registry) error {
	dir := filepath.Dir(m.path)
	base := strings.TrimSuffix(filepath.Base(m.path), filepath.Ext(m.path))

	prior, err := os.ReadFile(m.path)
	switch {
	case err == nil:
		snapshotPath := filepath.Join(dir, fmt.Sprintf("%s.v%d.json", base, reg.Version))
		if err := os.WriteFile(snapshotPath, prior, 0o644); err != nil {
			return fmt.Errorf("registry: write snapshot %s: %w", snapshotPath, err)
		}
	case os.IsNotExist(err):
		// No live file yet; nothing to archive.
	default:
		return fmt.Errorf("registry: read live file %s: %w", m.path, err)
	}

	reg.Version++

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("registry: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("registry: rename into place: %w", err)
	}
	return nil
}
