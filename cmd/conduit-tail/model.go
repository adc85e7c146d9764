package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	eventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// connectedMsg carries the opened stream into the update loop.
type connectedMsg struct {
	cancel context.CancelFunc
	events <-chan sseEvent
}

// eventMsg carries one SSE event into the update loop.
type eventMsg sseEvent

// streamClosedMsg signals the server ended the stream.
type streamClosedMsg struct{}

// streamErrMsg signals the connection failed.
type streamErrMsg struct{ err error }

// model is the Bubble Tea model: a viewport over the rendered event log.
type model struct {
	url    string
	cancel context.CancelFunc
	events <-chan sseEvent

	viewport viewport.Model
	lines    []string
	ready    bool
	closed   bool
	err      error
}

func newModel(url string) model {
	return model{url: url}
}

// connectCmd opens the SSE stream.
func connectCmd(url string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		events, err := openStream(ctx, url)
		if err != nil {
			cancel()
			return streamErrMsg{err: err}
		}
		return connectedMsg{cancel: cancel, events: events}
	}
}

// waitForEvent blocks for the next event.
func waitForEvent(events <-chan sseEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return connectCmd(m.url)
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight
		}
		m.viewport.SetContent(strings.Join(m.lines, "\n"))

	case connectedMsg:
		m.cancel = msg.cancel
		m.events = msg.events
		return m, waitForEvent(m.events)

	case eventMsg:
		m.lines = append(m.lines, renderEvent(sseEvent(msg)))
		if m.ready {
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
		}
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.closed = true

	case streamErrMsg:
		m.err = msg.err
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// renderEvent formats one SSE event as a log line.
func renderEvent(ev sseEvent) string {
	label := eventStyle.Render(ev.Event)
	switch ev.Event {
	case "finished":
		return doneStyle.Render("── finished ──")
	case "stderr":
		return fmt.Sprintf("%s %s", label, errStyle.Render(ev.Data))
	default:
		return fmt.Sprintf("%s %s", label, ev.Data)
	}
}

// View implements tea.Model.
func (m model) View() string {
	status := "streaming"
	if m.closed {
		status = "stream ended"
	}
	if m.err != nil {
		status = errStyle.Render(m.err.Error())
	}
	header := headerStyle.Render(fmt.Sprintf("conduit-tail %s (%s)", m.url, status))
	if !m.ready {
		return header + "\n  connecting..."
	}
	return header + "\n" + m.viewport.View()
}
