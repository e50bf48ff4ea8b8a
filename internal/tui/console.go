// Package tui renders the interactive shell console: live gateway state,
// attach progress, and a tail of child output, fed by bus events.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/basket/claw-shell/internal/bus"
)

const maxOutputLines = 12

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	crashedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	stderrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	urlStyle     = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
)

// Controls is the slice of the supervisor the console drives.
type Controls interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type busMsg struct {
	event bus.Event
}

type actionErrMsg struct {
	err error
}

type outputLine struct {
	stream string
	text   string
}

type model struct {
	controls Controls
	sub      *bus.Subscription
	url      string
	port     int

	state    string
	pid      int
	attach   string
	output   []outputLine
	lastErr  string
	quitting bool
}

func newModel(controls Controls, sub *bus.Subscription, url string, port int) model {
	return model{
		controls: controls,
		sub:      sub,
		url:      url,
		port:     port,
		state:    "idle",
		attach:   "pending",
	}
}

func waitForEvent(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.Ch()
		if !ok {
			return tea.Quit()
		}
		return busMsg{event: ev}
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.sub)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "s":
			controls := m.controls
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return actionErrMsg{err: controls.Stop(ctx)}
			}
		case "r":
			controls := m.controls
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return actionErrMsg{err: controls.Start(ctx)}
			}
		}
	case actionErrMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		return m, nil
	case busMsg:
		m = m.applyEvent(msg.event)
		return m, waitForEvent(m.sub)
	}
	return m, nil
}

func (m model) applyEvent(ev bus.Event) model {
	switch ev.Topic {
	case bus.TopicProcessStarting:
		m.state = "starting"
	case bus.TopicProcessStarted:
		if p, ok := ev.Payload.(bus.ProcessStartedEvent); ok {
			m.state = "running"
			m.pid = p.PID
		}
	case bus.TopicProcessExited:
		if p, ok := ev.Payload.(bus.ProcessExitedEvent); ok {
			if p.Crashed {
				m.state = fmt.Sprintf("crashed (code %d)", p.ExitCode)
				if p.Signal != "" {
					m.state = "crashed (" + p.Signal + ")"
				}
			} else {
				m.state = "exited"
			}
			m.pid = 0
		}
	case bus.TopicProcessSpawnError:
		if p, ok := ev.Payload.(bus.ProcessSpawnErrorEvent); ok {
			m.state = "spawn failed"
			m.lastErr = p.Err
		}
	case bus.TopicProcessOutput:
		if p, ok := ev.Payload.(bus.ProcessOutputEvent); ok {
			m.output = append(m.output, outputLine{stream: p.Stream, text: p.Line})
			if len(m.output) > maxOutputLines {
				m.output = m.output[1:]
			}
		}
	case bus.TopicAttachStarted:
		m.attach = "attaching"
	case bus.TopicAttachRetry:
		if p, ok := ev.Payload.(bus.AttachAttemptEvent); ok {
			m.attach = fmt.Sprintf("retrying (%d)", p.Attempt)
		}
	case bus.TopicAttached:
		m.attach = "attached"
	case bus.TopicAttachFailed:
		m.attach = "failed"
	}
	return m
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("clawshell"))
	b.WriteString("\n\n")

	stateStyle := idleStyle
	switch {
	case m.state == "running":
		stateStyle = runningStyle
	case strings.HasPrefix(m.state, "crashed") || m.state == "spawn failed":
		stateStyle = crashedStyle
	}
	b.WriteString(fmt.Sprintf("  gateway  %s", stateStyle.Render(m.state)))
	if m.pid > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  pid %d  port %d", m.pid, m.port)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  control  %s\n", m.attach))
	b.WriteString(fmt.Sprintf("  url      %s\n", urlStyle.Render(m.url)))
	if m.lastErr != "" {
		b.WriteString(crashedStyle.Render(fmt.Sprintf("  error    %s", m.lastErr)))
		b.WriteString("\n")
	}

	if len(m.output) > 0 {
		b.WriteString("\n")
		for _, line := range m.output {
			style := dimStyle
			if line.stream == "stderr" {
				style = stderrStyle
			}
			b.WriteString("  " + style.Render(line.text) + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render("  r restart · s stop · q quit") + "\n")
	return b.String()
}

// Run drives the console until the user quits or ctx is cancelled. The
// subscription is created here and released on exit.
func Run(ctx context.Context, b *bus.Bus, controls Controls, url string, port int) error {
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	p := tea.NewProgram(newModel(controls, sub, url, port), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
