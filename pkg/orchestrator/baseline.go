package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/metrics"
	"github.com/kloros-colony/fabric/pkg/types"
)

// defaultMaxVersions bounds how many archived baseline/manifest pairs
// are retained, matching baseline_manager.py's MAX_VERSIONS.
const defaultMaxVersions = 10

// BaselineManager commits and rolls back the colony's baseline
// configuration document, maintaining a versioned manifest chain.
type BaselineManager struct {
	dir         string // directory holding baseline.yaml and manifest.json
	versionsDir string
	maxVersions int
}

// NewBaselineManager returns a BaselineManager rooted at dir.
func NewBaselineManager(dir string, maxVersions int) *BaselineManager {
	if maxVersions <= 0 {
		maxVersions = defaultMaxVersions
	}
	return &BaselineManager{
		dir:         dir,
		versionsDir: filepath.Join(dir, "versions"),
		maxVersions: maxVersions,
	}
}

func (b *BaselineManager) configPath() string   { return filepath.Join(b.dir, "baseline.yaml") }
func (b *BaselineManager) manifestPath() string { return filepath.Join(b.dir, "manifest.json") }

// CommitBaseline atomically replaces the live baseline config with
// newConfig, extends the manifest chain, archives both files, and
// prunes old archives (§4.H.1). It returns the new manifest.
func (b *BaselineManager) CommitBaseline(newConfig map[string]any, promotionIDs []string, actor string) (types.BaselineManifest, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return types.BaselineManifest{}, fmt.Errorf("orchestrator: mkdir baseline dir: %w", err)
	}
	if err := os.MkdirAll(b.versionsDir, 0o755); err != nil {
		return types.BaselineManifest{}, fmt.Errorf("orchestrator: mkdir versions dir: %w", err)
	}

	prev, _ := b.currentManifest() // zero value if absent or unreadable, per baseline_manager.py

	encoded, err := yaml.Marshal(newConfig)
	if err != nil {
		return types.BaselineManifest{}, fmt.Errorf("orchestrator: marshal baseline: %w", err)
	}

	tmpPath := b.configPath() + ".tmp"
	if err := writeFileFsync(tmpPath, encoded); err != nil {
		return types.BaselineManifest{}, fmt.Errorf("orchestrator: write temp baseline: %w", err)
	}

	sum := sha256.Sum256(encoded)
	newSHA := hex.EncodeToString(sum[:])

	if err := os.Rename(tmpPath, b.configPath()); err != nil {
		_ = os.Remove(tmpPath)
		return types.BaselineManifest{}, fmt.Errorf("orchestrator: commit baseline: %w", err)
	}

	manifest := types.BaselineManifest{
		Version:      prev.Version + 1,
		SHA256:       newSHA,
		PreviousSHA:  prev.SHA256,
		TS:           float64(time.Now().UnixNano()) / 1e9,
		Actor:        actor,
		PromotionIDs: promotionIDs,
	}

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return types.BaselineManifest{}, fmt.Errorf("orchestrator: marshal manifest: %w", err)
	}
	if err := writeFileFsync(b.manifestPath(), manifestBytes); err != nil {
		return types.BaselineManifest{}, fmt.Errorf("orchestrator: write manifest: %w", err)
	}

	if err := b.archive(manifest.Version); err != nil {
		log.Error("orchestrator: archive baseline version: " + err.Error())
	}
	if err := b.pruneOldVersions(); err != nil {
		log.Error("orchestrator: prune baseline versions: " + err.Error())
	}

	metrics.BaselineCommitsTotal.Inc()
	return manifest, nil
}

// currentManifest reads the live manifest, or a zeroed one if absent or
// unreadable.
func (b *BaselineManager) currentManifest() (types.BaselineManifest, error) {
	data, err := os.ReadFile(b.manifestPath())
	if err != nil {
		return types.BaselineManifest{}, err
	}
	var m types.BaselineManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return types.BaselineManifest{}, err
	}
	return m, nil
}

func (b *BaselineManager) archivePaths(version int) (config, manifest string) {
	return filepath.Join(b.versionsDir, fmt.Sprintf("baseline_v%04d.yaml", version)),
		filepath.Join(b.versionsDir, fmt.Sprintf("manifest_v%04d.json", version))
}

func (b *BaselineManager) archive(version int) error {
	configArchive, manifestArchive := b.archivePaths(version)
	if err := copyFile(b.configPath(), configArchive); err != nil {
		return err
	}
	return copyFile(b.manifestPath(), manifestArchive)
}

// RollbackToVersion restores both the baseline config and manifest
// from the archived copies of version (§4.H.2).
func (b *BaselineManager) RollbackToVersion(version int) error {
	configArchive, manifestArchive := b.archivePaths(version)
	if _, err := os.Stat(configArchive); err != nil {
		return fmt.Errorf("orchestrator: version %d not found in archives", version)
	}
	if _, err := os.Stat(manifestArchive); err != nil {
		return fmt.Errorf("orchestrator: manifest for version %d not found", version)
	}

	if err := copyFile(configArchive, b.configPath()); err != nil {
		return fmt.Errorf("orchestrator: rollback config: %w", err)
	}
	if err := copyFile(manifestArchive, b.manifestPath()); err != nil {
		return fmt.Errorf("orchestrator: rollback manifest: %w", err)
	}

	metrics.BaselineRollbacksTotal.Inc()
	return nil
}

// listVersions returns every archived version number, descending.
func (b *BaselineManager) listVersions() ([]int, error) {
	entries, err := os.ReadDir(b.versionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var versions []int
	for _, e := range entries {
		var v int
		if _, err := fmt.Sscanf(e.Name(), "baseline_v%04d.yaml", &v); err == nil {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return versions, nil
}

func (b *BaselineManager) pruneOldVersions() error {
	versions, err := b.listVersions()
	if err != nil {
		return err
	}
	if len(versions) <= b.maxVersions {
		return nil
	}

	for _, v := range versions[b.maxVersions:] {
		configArchive, manifestArchive := b.archivePaths(v)
		_ = os.Remove(configArchive)
		_ = os.Remove(manifestArchive)
	}
	return nil
}

func writeFileFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
