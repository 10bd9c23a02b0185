package main

import (
	"fmt"

	"github.com/josiahbot07/claude-telegram-relay/internal/appversion"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root relay command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Telegram relay for the claude CLI",
		Long:          "relay bridges Telegram chats to the local claude CLI.\nIt keeps one resumable conversation, supervises the processes it spawns,\nand archives closed sessions with short summaries.",
		Version:       fmt.Sprintf("relay %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newAskCmd(),
		newLogsCmd(),
		newCleanupCmd(),
		newDashCmd(),
	)

	return cmd
}
