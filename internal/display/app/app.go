package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/display/client"
	"github.com/cardio-live/cardiolive/internal/display/replica"
	"github.com/cardio-live/cardiolive/internal/display/theme"
	"github.com/cardio-live/cardiolive/internal/display/views/grid"
	"github.com/cardio-live/cardiolive/internal/display/views/status"
	"github.com/cardio-live/cardiolive/internal/handoff"
	"github.com/cardio-live/cardiolive/internal/session"
)

// SessionSource reads the handoff token and the session it names.
type SessionSource interface {
	ReadHandoff() (handoff.Token, bool, error)
	Session(id string) (session.Session, error)
}

// HandoffMsg reports the outcome of reading the handoff.
type HandoffMsg struct {
	Session session.Session
	OK      bool
	Err     error
}

// ViewMsg carries the replica's latest view.
type ViewMsg struct{ View aggregate.View }

// Model is the root Bubble Tea model.
type Model struct {
	sessions SessionSource
	feed     *client.FeedClient
	replica  *replica.Replica
	ctx      context.Context
	cancel   context.CancelFunc

	keys   KeyMap
	width  int
	height int

	bound   bool
	session session.Session

	statusBar status.Model
	grid      grid.Model

	connected bool
}

// New creates the root model. The replica must be started by the caller.
func New(sessions SessionSource, feed *client.FeedClient, r *replica.Replica) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		sessions:  sessions,
		feed:      feed,
		replica:   r,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		grid:      grid.New(),
	}
}

// Init reads the handoff, connects to the feed and waits for views.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadHandoff(), m.feed.Listen(m.ctx), m.waitView())
}

func (m Model) loadHandoff() tea.Cmd {
	sessions := m.sessions
	return func() tea.Msg {
		tok, ok, err := sessions.ReadHandoff()
		if err != nil {
			return HandoffMsg{Err: fmt.Errorf("reading handoff: %w", err)}
		}
		if !ok {
			return HandoffMsg{}
		}
		s, err := sessions.Session(tok.SessionID)
		if err != nil {
			return HandoffMsg{Err: fmt.Errorf("loading session %s: %w", tok.SessionID, err)}
		}
		return HandoffMsg{Session: s, OK: true}
	}
}

func (m Model) waitView() tea.Cmd {
	ctx, views := m.ctx, m.replica.Views()
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views:
			return ViewMsg{View: v}
		}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.grid.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case HandoffMsg:
		return m.applyHandoff(msg), nil

	case ViewMsg:
		m.grid.SetView(msg.View)
		m.statusBar.Participants = m.replica.Participants()
		return m, m.waitView()

	case client.ConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.replica.ResetSamples()
		return m, m.feed.ReadLoop(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		return m, m.feed.Listen(m.ctx)

	case client.EventMsg:
		// Invalid events were already rejected by the server.
		_ = m.replica.Apply(msg.Event)
		m.statusBar.Seq = msg.Seq
		return m, m.feed.ReadLoop(m.ctx)

	case client.ErrorMsg:
		return m, m.feed.ReadLoop(m.ctx)
	}

	return m, nil
}

func (m Model) applyHandoff(msg HandoffMsg) Model {
	m.statusBar.Err = ""
	switch {
	case msg.Err != nil:
		m.statusBar.Err = msg.Err.Error()
	case !msg.OK:
		m.replica.Unbind()
		m.bound = false
		m.session = session.Session{}
	default:
		if err := m.replica.Bind(msg.Session); err != nil {
			m.statusBar.Err = err.Error()
			return m
		}
		m.bound = true
		m.session = msg.Session
	}
	m.statusBar.SessionName = m.session.Name
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.feed.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reload):
		return m, m.loadHandoff()
	}
	return m, nil
}

// View renders the full display.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := m.grid.View()
	if !m.bound {
		body = m.renderPlaceholder()
	}

	sections := []string{
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  r:reload session  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderPlaceholder() string {
	box := lipgloss.NewStyle().
		Width(max(m.width-4, 30)).
		Padding(1, 2).
		Align(lipgloss.Center).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
	return box.Render(lipgloss.JoinVertical(lipgloss.Center,
		theme.StyleHeader.Render("No live session"),
		theme.StyleDimmed.Render("Start a class from the coach console, then press r."),
	))
}
