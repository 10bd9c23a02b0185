package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/archive"
	"github.com/josiahbot07/claude-telegram-relay/pkg/lockfile"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"
)

// archiveLimit caps how many archived sessions the dashboard loads.
const archiveLimit = 20

// dashPaths locates the relay state the dashboard reads. Resolution
// mirrors the relay binary: RELAY_HOME moves everything, specific env
// vars override single paths.
type dashPaths struct {
	home        string
	stateDir    string
	pidPath     string
	archivePath string
}

// resolveDashPaths returns the relay state paths from the environment.
func resolveDashPaths() (dashPaths, error) {
	home := os.Getenv("RELAY_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return dashPaths{}, fmt.Errorf("get home dir: %w", err)
		}
		home = filepath.Join(userHome, ".claude-relay")
	}

	return dashPaths{
		home:        home,
		stateDir:    home,
		pidPath:     envOr("RELAY_PID_PATH", filepath.Join(home, "relay.pid")),
		archivePath: envOr("RELAY_ARCHIVE_PATH", filepath.Join(home, "archive.db")),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// childStatus is one registry entry plus a liveness probe.
type childStatus struct {
	state.ChildRecord
	Alive bool `json:"alive"`
}

// snapshot is everything the dashboard shows, loaded in one pass.
type snapshot struct {
	RelayRunning bool                `json:"relay_running"`
	RelayPID     int                 `json:"relay_pid,omitempty"`
	Session      state.SessionRecord `json:"session"`
	Children     []childStatus       `json:"children"`
	Archived     []archive.Row       `json:"archived"`
	TakenAt      time.Time           `json:"taken_at"`
}

// aliveChildren counts the children whose processes still exist.
func (s snapshot) aliveChildren() int {
	n := 0
	for _, c := range s.Children {
		if c.Alive {
			n++
		}
	}
	return n
}

// loadSnapshot reads relay state from disk. Missing files read as
// empty: the dashboard renders a quiet relay, not an error.
func loadSnapshot(paths dashPaths) (snapshot, error) {
	snap := snapshot{TakenAt: time.Now()}

	status, pid, err := lockfile.Status(paths.pidPath)
	if err != nil {
		return snap, fmt.Errorf("relay status: %w", err)
	}
	if status == lockfile.StatusRunning {
		snap.RelayRunning = true
		snap.RelayPID = pid
	}

	store := state.NewStore(paths.stateDir)
	if snap.Session, err = store.LoadSession(); err != nil {
		return snap, err
	}
	children, err := store.LoadChildren()
	if err != nil {
		return snap, err
	}
	for _, c := range children {
		snap.Children = append(snap.Children, childStatus{
			ChildRecord: c,
			Alive:       lockfile.IsProcessAlive(c.PID),
		})
	}

	if snap.Archived, err = loadArchived(paths.archivePath); err != nil {
		return snap, err
	}
	return snap, nil
}

// loadArchived reads the newest archived sessions. A missing database
// means nothing has been archived yet.
func loadArchived(path string) ([]archive.Row, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	store, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer store.Close() //nolint:errcheck // best-effort close on read-only path

	return store.Recent(context.Background(), archiveLimit)
}
