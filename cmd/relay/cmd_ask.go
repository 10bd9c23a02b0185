package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/claude"
	"github.com/josiahbot07/claude-telegram-relay/pkg/relay"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"

	"github.com/spf13/cobra"
)

// newAskCmd creates the "relay ask" subcommand.
func newAskCmd() *cobra.Command {
	var (
		resume  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Run one assistant invocation locally",
		Long: "Sends a single prompt through the same orchestration the relay uses\n" +
			"(child registry, audit log, timeout escalation) and prints the result.\n" +
			"No Telegram connection is made.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			if err := bootstrapHome(paths); err != nil {
				return err
			}
			cfg, err := loadConfig(paths.ConfigPath)
			if err != nil {
				return err
			}
			if err := checkAssistantBinary(cfg.ClaudeBinary); err != nil {
				return err
			}

			invoker, _, err := buildInvoker(paths, cfg, state.NewStore(paths.StateDir))
			if err != nil {
				return err
			}

			return runAsk(cmd.Context(), cmd.OutOrStdout(), invoker, askRequest{
				prompt:  strings.Join(args, " "),
				resume:  resume,
				timeout: timeout,
			})
		},
	}

	cmd.Flags().StringVar(&resume, "resume", "", "resume an existing CLI session id")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override invoke_timeout for this call")

	return cmd
}

// askRequest is the parsed "relay ask" input.
type askRequest struct {
	prompt  string
	resume  string
	timeout time.Duration
}

// runAsk invokes the assistant once and prints the result to w. The
// CLI session id goes to stderr so stdout stays pipeable.
func runAsk(ctx context.Context, w io.Writer, invoker relay.Invoker, req askRequest) error {
	out, err := invoker.Invoke(ctx, claude.Request{
		Prompt:   req.prompt,
		ResumeID: req.resume,
		Timeout:  req.timeout,
		Tag:      "ask",
	})
	if err != nil {
		return fmt.Errorf("invoke: %w", err)
	}

	switch out.Kind {
	case claude.OutcomeOK:
		fmt.Fprintln(w, out.Result)
		if out.SessionID != "" {
			fmt.Fprintf(os.Stderr, "session: %s (resume with --resume %s)\n", out.SessionID, out.SessionID)
		}
		return nil
	case claude.OutcomeTimeout:
		return fmt.Errorf("assistant timed out after %s", out.Duration.Round(time.Second))
	case claude.OutcomeError:
		if out.Stderr != "" {
			return fmt.Errorf("assistant exited %d: %s", out.ExitCode, out.Stderr)
		}
		return fmt.Errorf("assistant exited %d", out.ExitCode)
	}
	return nil
}
