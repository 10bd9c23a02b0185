package main

import "github.com/charmbracelet/lipgloss"

// The dash sticks to the terminal's ANSI palette so it renders the
// same over ssh and inside tmux.
const (
	colorAccent  = lipgloss.Color("6")   // cyan: pane titles, counters
	colorOK      = lipgloss.Color("2")   // green: relay online, children alive
	colorBad     = lipgloss.Color("1")   // red: relay offline, dead children
	colorPending = lipgloss.Color("3")   // yellow: work still in flight
	colorDim     = lipgloss.Color("240") // gray: help lines, placeholders
)

// styles is the dash's style sheet, keyed by role rather than color so
// render paths read as what they mean.
type styles struct {
	Title    lipgloss.Style // pane headings
	Dim      lipgloss.Style // help lines, placeholders, overflow notes
	OK       lipgloss.Style // online relay, alive children
	Bad      lipgloss.Style // offline relay, dead children, load errors
	Pending  lipgloss.Style // child activity counts
	Count    lipgloss.Style // status bar counters
	Selected lipgloss.Style // highlighted archive row
}

func newStyles() styles {
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Dim:     lipgloss.NewStyle().Foreground(colorDim),
		OK:      lipgloss.NewStyle().Foreground(colorOK),
		Bad:     lipgloss.NewStyle().Foreground(colorBad),
		Pending: lipgloss.NewStyle().Foreground(colorPending),
		Count:   lipgloss.NewStyle().Foreground(colorAccent),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Background(colorAccent).
			Foreground(lipgloss.Color("0")),
	}
}
