package main

import (
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// transcriptPane wraps a bubbles viewport for scrollable transcript
// content. A one-line title is rendered above the viewport; the body
// scrolls.
type transcriptPane struct {
	vp    viewport.Model
	st    styles
	title string
}

// newTranscriptPane creates an empty transcript pane.
func newTranscriptPane(st styles) transcriptPane {
	return transcriptPane{st: st}
}

// SetSize updates the pane dimensions. Height covers the title line
// plus the scrollable body.
func (p *transcriptPane) SetSize(width, height int) {
	body := height - 1
	if body < 1 {
		body = 1
	}
	if width < 1 {
		width = 1
	}
	p.vp.Width = width
	p.vp.Height = body
}

// SetContent replaces the pane body. A reader parked at the bottom
// stays at the bottom as the transcript grows; a reader who scrolled
// up keeps their place.
func (p *transcriptPane) SetContent(title, text string) {
	atBottom := p.vp.AtBottom()
	p.title = title
	if text == "" {
		text = "(no messages yet)"
	}
	p.vp.SetContent(lipgloss.NewStyle().Width(p.vp.Width).Render(text))
	if atBottom {
		p.vp.GotoBottom()
	}
}

// ScrollUp moves the body up n lines.
func (p *transcriptPane) ScrollUp(n int) { p.vp.LineUp(n) }

// ScrollDown moves the body down n lines.
func (p *transcriptPane) ScrollDown(n int) { p.vp.LineDown(n) }

// GotoTop jumps to the first transcript line.
func (p *transcriptPane) GotoTop() { p.vp.GotoTop() }

// GotoBottom jumps to the latest transcript line.
func (p *transcriptPane) GotoBottom() { p.vp.GotoBottom() }

// View renders the title line and the scrollable body.
func (p transcriptPane) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		p.st.Title.Render(p.title),
		p.vp.View(),
	)
}
