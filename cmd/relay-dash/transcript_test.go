package main

import (
	"fmt"
	"strings"
	"testing"
)

func numberedTranscript(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "entry-%02d\n", i)
	}
	return b.String()
}

// TestTranscriptPane_EmptyContent shows a placeholder instead of a
// blank pane.
func TestTranscriptPane_EmptyContent(t *testing.T) {
	pane := newTranscriptPane(newStyles())
	pane.SetSize(40, 6)
	pane.SetContent(liveTranscriptTitle, "")

	view := pane.View()
	if !strings.Contains(view, "transcript (live)") {
		t.Errorf("missing title, got: %s", view)
	}
	if !strings.Contains(view, "no messages yet") {
		t.Errorf("missing placeholder, got: %s", view)
	}
}

// TestTranscriptPane_FollowsBottom verifies a fresh pane lands on the
// newest entries.
func TestTranscriptPane_FollowsBottom(t *testing.T) {
	pane := newTranscriptPane(newStyles())
	pane.SetSize(40, 5) // 4 body lines
	pane.SetContent(liveTranscriptTitle, numberedTranscript(10))

	view := pane.View()
	if !strings.Contains(view, "entry-10") {
		t.Errorf("expected newest entry visible, got: %s", view)
	}
	if strings.Contains(view, "entry-01") {
		t.Errorf("oldest entry should be scrolled out, got: %s", view)
	}
}

// TestTranscriptPane_KeepsPlaceWhenScrolledUp verifies growth does not
// yank a reader back to the bottom.
func TestTranscriptPane_KeepsPlaceWhenScrolledUp(t *testing.T) {
	pane := newTranscriptPane(newStyles())
	pane.SetSize(40, 5)
	pane.SetContent(liveTranscriptTitle, numberedTranscript(10))

	pane.ScrollUp(4)
	offset := pane.vp.YOffset

	pane.SetContent(liveTranscriptTitle, numberedTranscript(11))
	if pane.vp.YOffset != offset {
		t.Errorf("YOffset = %d, want %d (reader place kept)", pane.vp.YOffset, offset)
	}

	pane.GotoBottom()
	if !strings.Contains(pane.View(), "entry-11") {
		t.Errorf("expected newest entry after GotoBottom, got: %s", pane.View())
	}
}

// TestTranscriptPane_ScrollBounds verifies scrolling clamps at both
// ends.
func TestTranscriptPane_ScrollBounds(t *testing.T) {
	pane := newTranscriptPane(newStyles())
	pane.SetSize(40, 5)
	pane.SetContent(liveTranscriptTitle, numberedTranscript(10))

	pane.GotoTop()
	if pane.vp.YOffset != 0 {
		t.Errorf("YOffset after GotoTop = %d, want 0", pane.vp.YOffset)
	}
	pane.ScrollUp(5)
	if pane.vp.YOffset != 0 {
		t.Errorf("YOffset = %d, want 0 (clamped at top)", pane.vp.YOffset)
	}

	pane.ScrollDown(100)
	if !pane.vp.AtBottom() {
		t.Error("expected viewport clamped at bottom")
	}
}
