package main

import (
	"fmt"
	"os"
	"os/exec"
)

// runPreflightChecks verifies the relay can actually serve before it
// takes the lock: a Telegram token, the assistant binary on PATH, and
// a usable working directory. Returns an actionable message on failure.
func runPreflightChecks(cfg relayConfig) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("config: %w — run 'relay init' and edit the config", err)
	}

	if err := checkAssistantBinary(cfg.ClaudeBinary); err != nil {
		return err
	}

	if cfg.WorkingDir != "" {
		info, err := os.Stat(cfg.WorkingDir)
		if err != nil {
			return fmt.Errorf("working_dir %s: %w", cfg.WorkingDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working_dir %s is not a directory", cfg.WorkingDir)
		}
	}

	return nil
}

// checkAssistantBinary verifies the assistant CLI is on PATH.
func checkAssistantBinary(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("assistant binary '%s' not found in PATH — install the claude CLI or set claude_binary", binary)
	}
	return nil
}
