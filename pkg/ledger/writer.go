package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kloros-colony/fabric/pkg/canon"
	"github.com/kloros-colony/fabric/pkg/log"
	"github.com/kloros-colony/fabric/pkg/metrics"
	"github.com/kloros-colony/fabric/pkg/types"
)

// Writer appends verified Observation rows to a single JSON-lines file.
// It is the subscriber side of the OBSERVATION topic.
type Writer struct {
	path string
	key  []byte

	// OnAppend, if set, is called after every row is durably appended so
	// a read-through cache (pkg/ledgercache) can drop stale aggregates
	// for the affected zooid/niche.
	OnAppend func(zooid, niche string)

	mu sync.Mutex
}

// NewWriter returns a Writer appending to path, verifying every row's
// signature under key.
func NewWriter(path string, key []byte) *Writer {
	return &Writer{path: path, key: key}
}

// Ingest verifies and appends the Observation carried in an OBSERVATION
// signal's facts. A bad signature is rejected silently (counted into
// the rejected metric), matching §4.G's "reject silently on bad
// signature" contract.
func (w *Writer) Ingest(sig types.Signal) error {
	sigField, _ := sig.Facts["sig"].(string)
	if sigField == "" {
		metrics.ObservationsRejectedTotal.WithLabelValues("missing_signature").Inc()
		return nil
	}

	body := canon.ObservationFields(sig.Facts)
	if !canon.Verify(body, sigField, w.key) {
		metrics.ObservationsRejectedTotal.WithLabelValues("bad_signature").Inc()
		log.Warn("ledger writer: rejected observation with bad signature")
		return nil
	}

	raw, err := json.Marshal(sig.Facts)
	if err != nil {
		return fmt.Errorf("ledger: marshal observation: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open %s: %w", w.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}

	metrics.ObservationsIngestedTotal.Inc()
	if w.OnAppend != nil {
		zooid, _ := sig.Facts["zooid"].(string)
		niche, _ := sig.Facts["niche"].(string)
		w.OnAppend(zooid, niche)
	}
	return nil
}

// RotateIfNeeded rotates the ledger file when it exceeds maxBytes: the
// last keepLines lines are kept in the live file and everything that
// preceded them is moved to a ".old" sibling.
func (w *Writer) RotateIfNeeded(maxBytes int64, keepLines int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ledger: stat: %w", err)
	}
	if info.Size() <= maxBytes {
		return nil
	}

	lines, err := tailLines(w.path, keepLines)
	if err != nil {
		return fmt.Errorf("ledger: tail read: %w", err)
	}

	oldPath := w.path + ".old"
	if err := os.Rename(w.path, oldPath); err != nil {
		return fmt.Errorf("ledger: archive to .old: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), "ledger.tmp-*")
	if err != nil {
		return fmt.Errorf("ledger: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	for _, line := range lines {
		if _, err := tmp.Write([]byte(line + "\n")); err != nil {
			tmp.Close()
			return fmt.Errorf("ledger: write rotated content: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: fsync rotated content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ledger: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("ledger: rename rotated content into place: %w", err)
	}

	metrics.LedgerRotationsTotal.Inc()
	return nil
}

// tailLines reads the last n non-empty lines of path via a single
// buffered forward scan (the file sizes this package deals with are
// bounded by maxBytes, so a full read is acceptable; a true streaming
// tail is unnecessary at this scale).
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		all = append(all, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
