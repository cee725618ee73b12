/*
Package lock implements the fabric's shared lock manager (§4.I): one lock
name, one file, one holder at a time, using an OS advisory exclusive lock
on the file descriptor plus PID-liveness/TTL based stale detection.

This is the direct generalization of the original source's
orchestration/core/state_manager.py, which used Python's fcntl.flock; the
Go implementation uses golang.org/x/sys/unix.Flock for the same
non-blocking exclusive advisory lock, already an indirect dependency of
the example corpus via the teacher's Raft stack.

Acquisition:

 1. If the lock file exists, read its JSON metadata. If the PID is alive
    and age <= TTL, reject with ErrHeld naming the holder. Otherwise reap.
 2. Open or create the lock file and take a non-blocking exclusive
    advisory lock on the descriptor. On failure, reject.
 3. Write {name, pid, hostname, started_at, path} as JSON and fsync.
 4. Return a Handle carrying the descriptor.

Release unlocks and closes the descriptor, leaving the file's last
metadata on disk; ReapStale sweeps orphaned lock files whose PID is dead
or whose age exceeds a bound.
*/
package lock
