package claude

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/lockfile"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"
)

// Registry persists the PIDs of live children so a crashed relay's
// orphans can be found and reaped by the next one. The mutex
// serializes the read-modify-write of the registry file.
type Registry struct {
	mu    sync.Mutex
	store *state.Store
	now   func() time.Time
}

// NewRegistry returns a registry backed by the given store.
func NewRegistry(store *state.Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Add records a child as live. Called after spawn, before wait.
func (r *Registry) Add(pid int, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	children, err := r.store.LoadChildren()
	if err != nil {
		return err
	}
	children = append(children, state.ChildRecord{
		PID:         pid,
		StartedAt:   r.now(),
		Description: description,
	})
	return r.store.SaveChildren(children)
}

// Remove drops a child from the registry. Unknown PIDs are ignored.
func (r *Registry) Remove(pid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	children, err := r.store.LoadChildren()
	if err != nil {
		return err
	}
	kept := children[:0]
	for _, c := range children {
		if c.PID != pid {
			kept = append(kept, c)
		}
	}
	return r.store.SaveChildren(kept)
}

// Live returns the recorded children.
func (r *Registry) Live() ([]state.ChildRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.LoadChildren()
}

// ReapOrphans terminates every child recorded by a previous relay
// process and clears the registry. Orphans are not this process's
// children, so there is no Wait to consume: liveness is polled with
// signal 0 until the grace window closes, then survivors get SIGKILL.
// Returns how many recorded processes were still alive.
func (r *Registry) ReapOrphans(grace time.Duration) (int, error) {
	return r.reapOrphans(grace, lockfile.IsProcessAlive, signalGroup)
}

func (r *Registry) reapOrphans(grace time.Duration, alive func(int) bool, kill func(int, syscall.Signal) error) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	children, err := r.store.LoadChildren()
	if err != nil {
		return 0, fmt.Errorf("reap orphans: %w", err)
	}

	var live []int
	for _, c := range children {
		if alive(c.PID) {
			live = append(live, c.PID)
			_ = kill(c.PID, syscall.SIGTERM)
		}
	}

	if len(live) > 0 {
		deadline := time.Now().Add(grace)
		for time.Now().Before(deadline) {
			if !anyAlive(live, alive) {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		for _, pid := range live {
			if alive(pid) {
				_ = kill(pid, syscall.SIGKILL)
			}
		}
	}

	if err := r.store.SaveChildren(nil); err != nil {
		return len(live), fmt.Errorf("clear child registry: %w", err)
	}
	return len(live), nil
}

func anyAlive(pids []int, alive func(int) bool) bool {
	for _, pid := range pids {
		if alive(pid) {
			return true
		}
	}
	return false
}

// signalGroup signals the orphan's process group, falling back to the
// process itself when it leads no group of its own.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err == nil {
		return nil
	}
	return syscall.Kill(pid, sig)
}
