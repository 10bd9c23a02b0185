package claude

import (
	"syscall"
	"time"
)

// TermStage is one step of the two-stage child termination.
type TermStage string

const (
	// TermRequested marks the decision to terminate.
	TermRequested TermStage = "requested"
	// TermSigterm means SIGTERM was sent to the process group.
	TermSigterm TermStage = "sigterm"
	// TermExited means the child left inside the grace window.
	TermExited TermStage = "exited"
	// TermSigkill means the grace window expired and SIGKILL was sent.
	TermSigkill TermStage = "sigkill"
	// TermReaped means the final wait completed; the child is gone.
	TermReaped TermStage = "reaped"
)

// Terminate drives a child through graceful-then-forceful shutdown:
// SIGTERM to the process group, the grace window, then SIGKILL if the
// child is still there. done must carry the child's Wait result;
// Terminate consumes it, so the child is always reaped on return.
//
// The returned trail lists the stages traversed in order, always
// ending in TermReaped. A child that ignored SIGTERM shows TermSigkill
// in its trail; one that left promptly shows TermExited.
func Terminate(proc Process, done <-chan error, grace time.Duration) []TermStage {
	stages := []TermStage{TermRequested}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Signal delivery failed: the child is already gone. Reap it.
		<-done
		return append(stages, TermExited, TermReaped)
	}
	stages = append(stages, TermSigterm)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return append(stages, TermExited, TermReaped)
	case <-timer.C:
		_ = proc.Signal(syscall.SIGKILL)
		stages = append(stages, TermSigkill)
		<-done
		return append(stages, TermReaped)
	}
}
