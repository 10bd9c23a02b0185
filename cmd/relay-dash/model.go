package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/josiahbot07/claude-telegram-relay/pkg/archive"
)

// tickMsg is sent by Bubble Tea on every tick interval.
// Used to trigger periodic state refresh even when fsnotify is unavailable.
type tickMsg time.Time

// snapshotMsg carries a freshly loaded state snapshot.
type snapshotMsg struct {
	snap snapshot
	err  error
}

// tickCmd returns a command that sends a tickMsg after 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refreshCmd returns a tea.Cmd that loads the relay state from disk.
func refreshCmd(paths dashPaths) tea.Cmd {
	return func() tea.Msg {
		snap, err := loadSnapshot(paths)
		return snapshotMsg{snap: snap, err: err}
	}
}

// ViewType represents different views in the dashboard.
type ViewType int

const (
	// SessionView shows the live session, transcript, and children.
	SessionView ViewType = iota
	// ArchiveView lists archived sessions with their summaries.
	ArchiveView
)

// maxChildRows caps how many child processes the session view lists.
const maxChildRows = 3

// Model is the Bubble Tea model for the relay dashboard.
type Model struct {
	paths dashPaths

	snap    snapshot
	loadErr error

	activeView ViewType
	transcript transcriptPane
	st         styles

	// Archive navigation state
	archiveSel int // index of the selected archived session

	// archivedID is non-zero while the transcript pane shows an
	// archived session instead of the live one.
	archivedID int64

	// UI state
	width  int
	height int
}

// newModel creates a Model initialized with SessionView active.
func newModel(paths dashPaths) Model {
	st := newStyles()
	return Model{
		paths:      paths,
		activeView: SessionView,
		transcript: newTranscriptPane(st),
		st:         st,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(m.paths), watchStateDir(m.paths.stateDir), tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript.SetSize(m.width, m.transcriptHeight())

	case tickMsg:
		return m, tea.Batch(refreshCmd(m.paths), tickCmd())

	case fsChangeMsg:
		// State changed on disk: refresh now and re-arm the watcher.
		return m, tea.Batch(refreshCmd(m.paths), watchStateDir(m.paths.stateDir))

	case snapshotMsg:
		m.loadErr = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.snap = msg.snap
		if m.archiveSel >= len(m.snap.Archived) {
			m.archiveSel = 0
		}
		if m.archivedID == 0 {
			m.transcript.SetContent(liveTranscriptTitle, m.snap.Session.Transcript)
		}
	}

	return m, nil
}

const liveTranscriptTitle = "transcript (live)"

// handleKeyPress processes keyboard input and returns updated model with optional command.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "q" || key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.activeView {
	case ArchiveView:
		return m.handleArchiveViewKeys(key)
	default:
		return m.handleSessionViewKeys(key)
	}
}

// handleSessionViewKeys processes keyboard input in SessionView.
func (m Model) handleSessionViewKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "a":
		m.activeView = ArchiveView
	case "esc":
		// Back to the live transcript after viewing an archived one.
		if m.archivedID != 0 {
			m.archivedID = 0
			m.transcript.SetContent(liveTranscriptTitle, m.snap.Session.Transcript)
			m.transcript.GotoBottom()
		}
	case "j", "down":
		m.transcript.ScrollDown(1)
	case "k", "up":
		m.transcript.ScrollUp(1)
	case "g":
		m.transcript.GotoTop()
	case "G":
		m.transcript.GotoBottom()
	}
	return m, nil
}

// handleArchiveViewKeys processes keyboard input in ArchiveView.
func (m Model) handleArchiveViewKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc":
		m.activeView = SessionView
	case "j", "down":
		if m.archiveSel < len(m.snap.Archived)-1 {
			m.archiveSel++
		}
	case "k", "up":
		if m.archiveSel > 0 {
			m.archiveSel--
		}
	case "enter":
		if len(m.snap.Archived) == 0 || m.archiveSel >= len(m.snap.Archived) {
			return m, nil
		}
		row := m.snap.Archived[m.archiveSel]
		m.archivedID = row.ID
		m.transcript.SetContent(archivedTranscriptTitle(row), row.Transcript)
		m.transcript.GotoTop()
		m.activeView = SessionView
	}
	return m, nil
}

// archivedTranscriptTitle labels the transcript pane while it shows an
// archived session.
func archivedTranscriptTitle(row archive.Row) string {
	return fmt.Sprintf("transcript (archived #%d, closed %s)", row.ID, row.ClosedAt.Format("2006-01-02 15:04"))
}

// transcriptHeight returns the lines available for the transcript pane
// after the status bar, session block, children block, and help line.
func (m Model) transcriptHeight() int {
	chrome := 1 + // status bar
		1 + // blank
		4 + // session block
		1 + // blank
		1 + maxChildRows + // children header + rows
		1 + // blank
		1 // help line
	h := m.height - chrome
	if h < 3 {
		h = 3
	}
	return h
}

// View implements tea.Model.
func (m Model) View() string {
	statusBar := m.renderStatusBar()

	switch m.activeView {
	case ArchiveView:
		return statusBar + "\n\n" + m.renderArchiveList()
	default:
		return statusBar + "\n\n" + m.renderSessionView()
	}
}

// renderStatusBar renders relay liveness, session size, child counts,
// and the archive total.
func (m Model) renderStatusBar() string {
	var relayStatus string
	if m.snap.RelayRunning {
		relayStatus = m.st.OK.Render(fmt.Sprintf("relay: online (PID %d)", m.snap.RelayPID))
	} else {
		relayStatus = m.st.Bad.Render("relay: offline")
	}

	bar := lipgloss.JoinHorizontal(
		lipgloss.Left,
		relayStatus,
		" | Messages: ",
		m.st.Count.Render(fmt.Sprintf("%d", m.snap.Session.MessageCount)),
		" | Children: ",
		m.st.Pending.Render(fmt.Sprintf("%d/%d alive", m.snap.aliveChildren(), len(m.snap.Children))),
		" | Archived: ",
		m.st.Count.Render(fmt.Sprintf("%d", len(m.snap.Archived))),
	)

	if m.loadErr != nil {
		bar += m.st.Bad.Render(fmt.Sprintf("  [%v]", m.loadErr))
	}
	return bar
}

// renderSessionView renders the session block, transcript pane, child
// list, and key help.
func (m Model) renderSessionView() string {
	help := "j/k scroll · g/G top/bottom · a archive · q quit"
	if m.archivedID != 0 {
		help = "j/k scroll · esc live transcript · a archive · q quit"
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderSessionBlock(),
		"",
		m.renderChildren(),
		"",
		m.transcript.View(),
		m.st.Dim.Render(help),
	)
}

// renderSessionBlock renders the active session's vitals.
func (m Model) renderSessionBlock() string {
	rec := m.snap.Session
	if rec.MessageCount == 0 {
		return m.st.Title.Render("session") + "\n" + m.st.Dim.Render("none, the next message starts one") + "\n\n"
	}

	binding := m.st.Dim.Render("not yet bound")
	if rec.SessionID != "" {
		binding = rec.SessionID
	}
	age := time.Since(rec.StartedAt).Round(time.Second)
	idle := time.Since(rec.LastActivity).Round(time.Second)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.st.Title.Render("session"),
		fmt.Sprintf("messages: %d · age: %s · idle: %s", rec.MessageCount, age, idle),
		fmt.Sprintf("transcript: %d bytes · participants: %d", len(rec.Transcript), len(rec.Participants)),
		fmt.Sprintf("CLI session: %s", binding),
	)
}

// renderChildren renders up to maxChildRows child processes.
func (m Model) renderChildren() string {
	lines := []string{m.st.Title.Render("children")}
	if len(m.snap.Children) == 0 {
		lines = append(lines, m.st.Dim.Render("none"))
		return strings.Join(lines, "\n")
	}

	shown := m.snap.Children
	if len(shown) > maxChildRows {
		shown = shown[:maxChildRows]
	}
	for _, c := range shown {
		liveness := m.st.Bad.Render("dead")
		if c.Alive {
			liveness = m.st.OK.Render("alive")
		}
		age := time.Since(c.StartedAt).Round(time.Second)
		lines = append(lines, fmt.Sprintf("PID %d · %s · %s · %s", c.PID, c.Description, liveness, age))
	}
	if extra := len(m.snap.Children) - maxChildRows; extra > 0 {
		lines = append(lines, m.st.Dim.Render(fmt.Sprintf("… and %d more", extra)))
	}
	return strings.Join(lines, "\n")
}

// renderArchiveList renders the archived sessions with summaries and a
// selection cursor.
func (m Model) renderArchiveList() string {
	lines := []string{m.st.Title.Render("archived sessions")}
	if len(m.snap.Archived) == 0 {
		lines = append(lines, m.st.Dim.Render("nothing archived yet"))
	}

	for i, row := range m.snap.Archived {
		summary := row.Summary
		if summary == "" {
			summary = m.st.Dim.Render("(summary pending)")
		}
		line := fmt.Sprintf("%s · %s · %d msgs · %s",
			row.ClosedAt.Format("2006-01-02 15:04"), row.CloseReason, row.MessageCount, summary)

		if i == m.archiveSel {
			lines = append(lines, m.st.Selected.Render("▸ "+line))
		} else {
			lines = append(lines, "  "+line)
		}
	}

	lines = append(lines, "", m.st.Dim.Render("j/k select · enter view transcript · esc back · q quit"))
	return strings.Join(lines, "\n")
}
