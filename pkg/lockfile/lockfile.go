// Package lockfile implements the PID-marker lock that keeps two relay
// processes from serving the same home directory. The lock is a plain
// file holding the owner's PID. A lock whose owner is dead is stale
// and may be taken over.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned by Acquire when a live process already holds the
// lock. The wrapping error names the holder PID.
var ErrHeld = errors.New("lock held by running process")

// StatusValue represents the health state of the lock holder.
type StatusValue string

const (
	// StatusRunning means the lock file exists and its process is alive.
	StatusRunning StatusValue = "running"
	// StatusStopped means no lock file exists.
	StatusStopped StatusValue = "stopped"
	// StatusStale means the lock file exists but its process is dead.
	StatusStale StatusValue = "stale"
)

// Lock is a held lock. Release removes the file, but only while it
// still names this process.
type Lock struct {
	path string
	pid  int
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Acquire claims the lock file for the current process. An existing
// file owned by a live process fails with ErrHeld; a file whose owner
// is dead (or that cannot be parsed) is stale and is taken over.
func Acquire(path string) (*Lock, error) {
	return acquire(path, os.Getpid(), IsProcessAlive)
}

func acquire(path string, pid int, alive func(int) bool) (*Lock, error) {
	holder, err := ReadPID(path)
	switch {
	case err == nil:
		if alive(holder) {
			return nil, fmt.Errorf("pid %d: %w", holder, ErrHeld)
		}
		// Dead holder: stale lock, fall through to take over.
	case errors.Is(err, os.ErrNotExist):
		// No lock file.
	default:
		// Unreadable or garbage content counts as stale. A parse
		// error still means no live holder can be identified.
		if !errors.Is(err, errParse) {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return nil, fmt.Errorf("write lock file %s: %w", path, err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the lock file if it still contains this process's
// PID. A file rewritten by a takeover is left alone. Idempotent.
func (l *Lock) Release() error {
	holder, err := ReadPID(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if holder != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	return nil
}

var errParse = errors.New("unparseable lock file")

// ReadPID reads and parses the PID from the lock file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // lock path is controlled by the application
	if err != nil {
		return 0, fmt.Errorf("read lock file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("lock file %s: %w", path, errParse)
	}
	return pid, nil
}

// IsProcessAlive checks whether a process with the given PID is
// running. On Unix, sending signal 0 checks for existence without
// actually signaling.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Status checks the lock file and holder liveness. Returns the status,
// the holder PID (0 if stopped), and any unexpected error.
func Status(path string) (StatusValue, int, error) {
	return status(path, IsProcessAlive)
}

func status(path string, alive func(int) bool) (StatusValue, int, error) {
	pid, err := ReadPID(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusStopped, 0, nil
		}
		if errors.Is(err, errParse) {
			return StatusStale, 0, nil
		}
		return StatusStopped, 0, fmt.Errorf("lock status: %w", err)
	}
	if alive(pid) {
		return StatusRunning, pid, nil
	}
	return StatusStale, pid, nil
}
