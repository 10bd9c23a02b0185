package claude

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// ExecSpawner spawns real CLI processes. Each child gets its own
// process group (Setpgid) so termination signals reach the whole tree
// the CLI forks underneath itself.
type ExecSpawner struct{}

// Spawn starts argv with stdout and stderr captured. The command is
// deliberately built without CommandContext: cancellation must run the
// SIGTERM escalation in Terminate, not the runtime's immediate kill.
func (ExecSpawner) Spawn(_ context.Context, argv []string, workdir string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv is assembled from operator config
	cmd.Dir = workdir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	return &execProcess{cmd: cmd, stdout: &stdout, stderr: &stderr}, nil
}

// execProcess adapts exec.Cmd to the Process interface.
type execProcess struct {
	cmd    *exec.Cmd
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

// Signal addresses the whole process group via the negative PID.
func (p *execProcess) Signal(sig syscall.Signal) error {
	return syscall.Kill(-p.cmd.Process.Pid, sig)
}

// Output returns the captured streams. Only valid after Wait returned.
func (p *execProcess) Output() (string, string) {
	return p.stdout.String(), p.stderr.String()
}
