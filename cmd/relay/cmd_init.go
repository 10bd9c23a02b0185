package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newInitCmd creates the "relay init" subcommand.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the relay home and a starter config",
		Long: `Creates ~/.claude-relay (or RELAY_HOME) and writes a commented starter
config.yaml. Refuses to overwrite an existing config unless --force is
given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			return runInit(cmd.OutOrStdout(), paths, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config.yaml")

	return cmd
}

// runInit bootstraps the home dir, writes the starter config, and
// reports whether the assistant CLI is reachable.
func runInit(w io.Writer, paths *Paths, force bool) error {
	if err := bootstrapHome(paths); err != nil {
		return err
	}

	if _, err := os.Stat(paths.ConfigPath); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", paths.ConfigPath)
	}

	if err := os.WriteFile(paths.ConfigPath, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(w, "wrote %s\n", paths.ConfigPath)

	if path, err := exec.LookPath(defaultConfig().ClaudeBinary); err == nil {
		fmt.Fprintf(w, "claude CLI: %s\n", path)
	} else {
		fmt.Fprintln(w, "claude CLI: not found in PATH (install it before 'relay start')")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Set telegram_token (from @BotFather) in the config")
	fmt.Fprintln(w, "  2. Add your Telegram user ID to allowed_user_ids")
	fmt.Fprintln(w, "  3. Run 'relay start'")
	return nil
}
