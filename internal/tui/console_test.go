package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/basket/claw-shell/internal/bus"
)

type fakeControls struct {
	starts int
	stops  int
}

func (f *fakeControls) Start(context.Context) error { f.starts++; return nil }
func (f *fakeControls) Stop(context.Context) error  { f.stops++; return nil }

func testModel() model {
	b := bus.New()
	return newModel(&fakeControls{}, b.Subscribe(""), "http://127.0.0.1:18789/?token=x", 18789)
}

func TestModel_ProcessLifecycleEvents(t *testing.T) {
	m := testModel()

	m = m.applyEvent(bus.Event{Topic: bus.TopicProcessStarting})
	if m.state != "starting" {
		t.Fatalf("state = %q, want starting", m.state)
	}

	m = m.applyEvent(bus.Event{
		Topic:   bus.TopicProcessStarted,
		Payload: bus.ProcessStartedEvent{RunID: "r1", PID: 321, Port: 18789},
	})
	if m.state != "running" || m.pid != 321 {
		t.Fatalf("state = %q pid = %d, want running/321", m.state, m.pid)
	}

	m = m.applyEvent(bus.Event{
		Topic:   bus.TopicProcessExited,
		Payload: bus.ProcessExitedEvent{RunID: "r1", ExitCode: 0},
	})
	if m.state != "exited" || m.pid != 0 {
		t.Fatalf("state = %q pid = %d, want exited/0", m.state, m.pid)
	}
}

func TestModel_CrashShowsSignal(t *testing.T) {
	m := testModel()
	m = m.applyEvent(bus.Event{
		Topic:   bus.TopicProcessExited,
		Payload: bus.ProcessExitedEvent{RunID: "r1", ExitCode: -1, Signal: "terminated", Crashed: true},
	})
	if !strings.Contains(m.state, "terminated") {
		t.Fatalf("state = %q, want signal name", m.state)
	}
}

func TestModel_SpawnErrorSurfaced(t *testing.T) {
	m := testModel()
	m = m.applyEvent(bus.Event{
		Topic:   bus.TopicProcessSpawnError,
		Payload: bus.ProcessSpawnErrorEvent{RunID: "r1", Path: "goclaw", Err: "executable not found"},
	})
	if m.state != "spawn failed" || m.lastErr != "executable not found" {
		t.Fatalf("state = %q lastErr = %q", m.state, m.lastErr)
	}
}

func TestModel_OutputRingBounded(t *testing.T) {
	m := testModel()
	for i := 0; i < maxOutputLines+5; i++ {
		m = m.applyEvent(bus.Event{
			Topic:   bus.TopicProcessOutput,
			Payload: bus.ProcessOutputEvent{RunID: "r1", Stream: "stdout", Line: "line"},
		})
	}
	if len(m.output) != maxOutputLines {
		t.Fatalf("output lines = %d, want %d", len(m.output), maxOutputLines)
	}
}

func TestModel_AttachProgress(t *testing.T) {
	m := testModel()

	m = m.applyEvent(bus.Event{Topic: bus.TopicAttachStarted, Payload: bus.AttachAttemptEvent{}})
	if m.attach != "attaching" {
		t.Fatalf("attach = %q", m.attach)
	}
	m = m.applyEvent(bus.Event{
		Topic:   bus.TopicAttachRetry,
		Payload: bus.AttachAttemptEvent{Attempt: 3, Err: "connection refused"},
	})
	if !strings.Contains(m.attach, "3") {
		t.Fatalf("attach = %q, want attempt number", m.attach)
	}
	m = m.applyEvent(bus.Event{Topic: bus.TopicAttached, Payload: bus.AttachAttemptEvent{}})
	if m.attach != "attached" {
		t.Fatalf("attach = %q", m.attach)
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := testModel()
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !updated.(model).quitting {
		t.Fatal("expected quitting flag")
	}
	if updated.(model).View() != "" {
		t.Fatal("quitting view should be empty")
	}
}

func TestModel_StopAndRestartKeys(t *testing.T) {
	controls := &fakeControls{}
	b := bus.New()
	m := newModel(controls, b.Subscribe(""), "http://127.0.0.1:18789/", 18789)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if cmd == nil {
		t.Fatal("expected stop command")
	}
	cmd()
	if controls.stops != 1 {
		t.Fatalf("stops = %d, want 1", controls.stops)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if cmd == nil {
		t.Fatal("expected start command")
	}
	cmd()
	if controls.starts != 1 {
		t.Fatalf("starts = %d, want 1", controls.starts)
	}
}

func TestView_ShowsStateAndURL(t *testing.T) {
	m := testModel()
	m = m.applyEvent(bus.Event{
		Topic:   bus.TopicProcessStarted,
		Payload: bus.ProcessStartedEvent{RunID: "r1", PID: 7, Port: 18789},
	})

	view := m.View()
	if !strings.Contains(view, "running") {
		t.Fatalf("view missing state: %q", view)
	}
	if !strings.Contains(view, "127.0.0.1:18789") {
		t.Fatalf("view missing URL: %q", view)
	}
}
