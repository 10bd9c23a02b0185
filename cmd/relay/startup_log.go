package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// spinnerInterval paces the boot spinner animation.
const spinnerInterval = 120 * time.Millisecond

// bootLog prints the relay's boot sequence one line per step: lock,
// orphan reaping, archive, session restore, Telegram connect. A step
// that waits on the network gets a spinner when stdout is a terminal.
type bootLog struct {
	mu    sync.Mutex
	w     io.Writer
	isTTY bool
}

func newBootLog(w io.Writer, isTTY bool) *bootLog {
	return &bootLog{w: w, isTTY: isTTY}
}

// Step records a completed boot step.
func (b *bootLog) Step(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.w, "✓ %s\n", msg)
}

// StepTimed records a completed boot step with how long it took.
func (b *bootLog) StepTimed(msg string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.w, "✓ %s (%ds)\n", msg, int(d.Seconds()))
}

// Warn records a non-fatal boot problem. Boot continues; the line
// marks the degraded piece.
func (b *bootLog) Warn(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.w, "! %s\n", msg)
}

// StartSpinner animates a waiting step until the returned stop
// function runs, then rewrites the line as a completed step. Stop is
// idempotent. Without a terminal the step prints once up front and
// once completed, so service logs stay free of control characters.
func (b *bootLog) StartSpinner(msg string) func() {
	if !b.isTTY {
		b.mu.Lock()
		fmt.Fprintf(b.w, "%s\n", msg)
		b.mu.Unlock()
		var once sync.Once
		return func() {
			once.Do(func() { b.Step(msg) })
		}
	}

	quit := make(chan struct{})
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		frames := `|/-\`
		tick := time.NewTicker(spinnerInterval)
		defer tick.Stop()
		for i := 0; ; i++ {
			select {
			case <-quit:
				return
			case <-tick.C:
				b.mu.Lock()
				fmt.Fprintf(b.w, "\r%c %s", frames[i%len(frames)], msg)
				b.mu.Unlock()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-idle
			b.mu.Lock()
			defer b.mu.Unlock()
			fmt.Fprintf(b.w, "\r✓ %s\n", msg)
		})
	}
}

// isStdoutTTY reports whether stdout is an interactive terminal.
func isStdoutTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// isStdinTTY reports whether stdin is an interactive terminal.
func isStdinTTY() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
