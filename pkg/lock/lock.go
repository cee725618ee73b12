package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kloros-colony/fabric/pkg/types"
)

// ErrHeld is returned by Acquire when the lock is held by another live
// process within its TTL. The caller is expected to yield — the
// orchestrator skips that tick's branch (§7).
type ErrHeld struct {
	Name      string
	HolderPID int
}

func (e *ErrHeld) Error() string {
	return fmt.Sprintf("lock %q is held by pid %d", e.Name, e.HolderPID)
}

// Handle is an acquired lock: the in-memory side of a Lock Handle (§3),
// carrying the open file descriptor.
type Handle struct {
	Meta types.LockHandle
	fd   int
}

// Manager brokers exclusive one-shot locks rooted at a single directory,
// one file per lock name.
type Manager struct {
	dir string
}

// NewManager returns a Manager rooted at dir, creating it if necessary.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("lock: create dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) pathFor(name string) string {
	return filepath.Join(m.dir, name+".lock")
}

// Acquire takes an exclusive, non-blocking lock named name. ttl bounds
// how long a live holder's lock is honored before it is considered
// stale and reaped.
func (m *Manager) Acquire(name string, ttl time.Duration) (*Handle, error) {
	path := m.pathFor(name)

	if existing, err := readMeta(path); err == nil {
		if processAlive(existing.PID) && time.Since(time.Unix(existing.StartedAt, 0)) <= ttl {
			return nil, &ErrHeld{Name: name, HolderPID: existing.PID}
		}
		// Dead PID or aged past TTL: proceed to reap by acquiring below.
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, &ErrHeld{Name: name}
		}
		return nil, fmt.Errorf("lock: flock %s: %w", path, err)
	}

	hostname, _ := os.Hostname()
	meta := types.LockHandle{
		Name:      name,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().Unix(),
		Path:      path,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("lock: marshal metadata: %w", err)
	}
	if err := unix.Ftruncate(fd, 0); err != nil {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("lock: truncate: %w", err)
	}
	if _, err := unix.Pwrite(fd, data, 0); err != nil {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("lock: write metadata: %w", err)
	}
	if err := unix.Fsync(fd); err != nil {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("lock: fsync: %w", err)
	}

	return &Handle{Meta: meta, fd: fd}, nil
}

// Release unlocks and closes the handle's descriptor. The file is left on
// disk with its last metadata, as described in §4.I.
func (m *Manager) Release(h *Handle) error {
	if h == nil || h.fd == 0 {
		return nil
	}
	if err := unix.Flock(h.fd, unix.LOCK_UN); err != nil {
		return fmt.Errorf("lock: unlock %s: %w", h.Meta.Name, err)
	}
	if err := unix.Close(h.fd); err != nil {
		return fmt.Errorf("lock: close %s: %w", h.Meta.Name, err)
	}
	h.fd = 0
	return nil
}

// ReapStale sweeps lock files whose holder is dead or whose age exceeds
// maxAge, returning the reaped lock names.
func (m *Manager) ReapStale(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock: read dir: %w", err)
	}

	var reaped []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		meta, err := readMeta(path)
		if err != nil {
			continue
		}
		age := time.Since(time.Unix(meta.StartedAt, 0))
		if !processAlive(meta.PID) || age > maxAge {
			if err := os.Remove(path); err == nil {
				reaped = append(reaped, strings.TrimSuffix(e.Name(), ".lock"))
			}
		}
	}
	return reaped, nil
}

func readMeta(path string) (types.LockHandle, error) {
	var meta types.LockHandle
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0: existence check only, matches os.kill(pid, 0) in the
	// original source.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
