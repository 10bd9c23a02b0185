// Package main implements the relay-dash interactive dashboard: a
// terminal view of the relay's live session, child processes, and
// archived conversations.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// robotSnapshot renders a JSON snapshot of the relay state for
// scripts; --json prints it and exits without starting the TUI.
func robotSnapshot(paths dashPaths) ([]byte, error) {
	snap, err := loadSnapshot(paths)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

func main() {
	jsonOut := flag.Bool("json", false, "print a JSON state snapshot and exit")
	flag.Parse()

	paths, err := resolveDashPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay-dash: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		data, err := robotSnapshot(paths)
		if err != nil {
			fmt.Fprintf(os.Stderr, "relay-dash: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	p := tea.NewProgram(newModel(paths), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}
