package main

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

// TestStylesRoleColors pins each role to its ANSI color so a palette
// edit that crosses roles (say, a red "online") shows up here.
func TestStylesRoleColors(t *testing.T) {
	st := newStyles()

	tests := []struct {
		name  string
		style lipgloss.Style
		want  lipgloss.Color
	}{
		{"Title", st.Title, colorAccent},
		{"Dim", st.Dim, colorDim},
		{"OK", st.OK, colorOK},
		{"Bad", st.Bad, colorBad},
		{"Pending", st.Pending, colorPending},
		{"Count", st.Count, colorAccent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.style.GetForeground(); got != tt.want {
				t.Errorf("%s foreground = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	if !st.Title.GetBold() {
		t.Error("titles should be bold")
	}
	if got := st.Selected.GetBackground(); got != colorAccent {
		t.Errorf("selection background = %v, want the accent color", got)
	}
}
