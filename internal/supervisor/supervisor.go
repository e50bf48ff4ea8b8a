// Package supervisor owns the gateway child process lifecycle. All mutable
// state (the child handle, the state machine) is confined to a single
// control-loop goroutine; Start, Stop, and Snapshot are messages into it.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/basket/claw-shell/internal/bus"
	"github.com/basket/claw-shell/internal/shared"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateCrashed  State = "crashed"
)

// newCommand builds the child exec.Cmd. Tests override it to count spawns
// or substitute a harmless executable.
var newCommand = func(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// Recorder persists run lifecycle records. Implementations must be safe to
// call from the control loop; failures are logged, never fatal.
type Recorder interface {
	RecordStart(runID string, pid int, startedAt time.Time) error
	RecordExit(runID string, exitCode int, signal string, crashed bool, endedAt time.Time) error
	RecordSpawnError(runID, detail string, at time.Time) error
}

// Options configures a Supervisor.
type Options struct {
	GatewayPath string // executable name or path, resolved via PATH
	StateDir    string
	ConfigPath  string // persisted gateway document path
	Port        int
	Token       string
	Bus         *bus.Bus
	Logger      *slog.Logger
	History     Recorder // optional
}

// Snapshot is a point-in-time view of the supervisor, safe to hand out.
type Snapshot struct {
	State State
	RunID string
	PID   int
}

type requestKind int

const (
	reqStart requestKind = iota
	reqStop
	reqSnapshot
)

type request struct {
	kind  requestKind
	reply chan response
}

type response struct {
	snap Snapshot
	err  error
}

type exitResult struct {
	runID string
	err   error
}

type childHandle struct {
	runID     string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
}

// Supervisor spawns and tracks at most one gateway child at a time.
type Supervisor struct {
	opts     Options
	logger   *slog.Logger
	requests chan request
	exits    chan exitResult

	// loop-confined
	state    State
	handle   *childHandle
	stopping map[string]bool
}

func New(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		opts:     opts,
		logger:   logger,
		requests: make(chan request),
		exits:    make(chan exitResult, 1),
		state:    StateIdle,
		stopping: make(map[string]bool),
	}
}

// Run drives the control loop until ctx is cancelled. On cancellation the
// child receives a best-effort SIGTERM before the loop exits.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.signalChild()
			return
		case req := <-s.requests:
			switch req.kind {
			case reqStart:
				err := s.start()
				req.reply <- response{snap: s.snapshot(), err: err}
			case reqStop:
				s.stopChild()
				req.reply <- response{snap: s.snapshot()}
			case reqSnapshot:
				req.reply <- response{snap: s.snapshot()}
			}
		case res := <-s.exits:
			s.handleExit(res)
		}
	}
}

// Start asks the control loop to spawn the gateway child. While a child is
// live the call is a logged no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	resp, err := s.send(ctx, reqStart)
	if err != nil {
		return err
	}
	return resp.err
}

// Stop sends the child a best-effort SIGTERM and releases the handle, so a
// subsequent Start spawns a fresh gateway without waiting for the old child
// to finish dying. It is a no-op when nothing is running.
func (s *Supervisor) Stop(ctx context.Context) error {
	_, err := s.send(ctx, reqStop)
	return err
}

// Snapshot reports the current state, run ID, and PID.
func (s *Supervisor) Snapshot(ctx context.Context) (Snapshot, error) {
	resp, err := s.send(ctx, reqSnapshot)
	if err != nil {
		return Snapshot{}, err
	}
	return resp.snap, nil
}

func (s *Supervisor) send(ctx context.Context, kind requestKind) (response, error) {
	req := request{kind: kind, reply: make(chan response, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

func (s *Supervisor) snapshot() Snapshot {
	snap := Snapshot{State: s.state}
	if s.handle != nil {
		snap.RunID = s.handle.runID
		snap.PID = s.handle.pid
	}
	return snap
}

func (s *Supervisor) start() error {
	if s.handle != nil {
		s.logger.Info("gateway already running", "run_id", s.handle.runID, "pid", s.handle.pid)
		return nil
	}

	s.state = StateStarting
	runID := shared.NewRunID()
	s.publish(bus.TopicProcessStarting, bus.ProcessStartedEvent{RunID: runID, Port: s.opts.Port})

	cmd := newCommand(s.opts.GatewayPath, s.childArgs()...)
	cmd.Env = append(os.Environ(), s.childEnv()...)
	for _, kv := range s.childEnv() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			s.logger.Debug("gateway env", "key", key, "value", shared.RedactEnvValue(key, value))
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.spawnFailed(runID, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.spawnFailed(runID, fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return s.spawnFailed(runID, err)
	}

	h := &childHandle{runID: runID, cmd: cmd, pid: cmd.Process.Pid, startedAt: time.Now()}
	s.handle = h
	s.state = StateRunning
	s.logger.Info("gateway started", "run_id", runID, "pid", h.pid, "port", s.opts.Port)
	s.publish(bus.TopicProcessStarted, bus.ProcessStartedEvent{RunID: runID, PID: h.pid, Port: s.opts.Port})
	if s.opts.History != nil {
		if err := s.opts.History.RecordStart(runID, h.pid, h.startedAt); err != nil {
			s.logger.Warn("record run start failed", "run_id", runID, "error", err)
		}
	}

	runCtx := shared.WithRunID(context.Background(), runID)
	go s.streamOutput(runCtx, runID, "stdout", stdout)
	go s.streamOutput(runCtx, runID, "stderr", stderr)
	go func() {
		s.exits <- exitResult{runID: runID, err: cmd.Wait()}
	}()
	return nil
}

func (s *Supervisor) spawnFailed(runID string, err error) error {
	s.state = StateIdle
	s.handle = nil
	s.logger.Error("gateway spawn failed", "run_id", runID, "path", s.opts.GatewayPath, "error", err)
	s.publish(bus.TopicProcessSpawnError, bus.ProcessSpawnErrorEvent{
		RunID: runID,
		Path:  s.opts.GatewayPath,
		Err:   err.Error(),
	})
	if s.opts.History != nil {
		if rerr := s.opts.History.RecordSpawnError(runID, err.Error(), time.Now()); rerr != nil {
			s.logger.Warn("record spawn error failed", "run_id", runID, "error", rerr)
		}
	}
	return fmt.Errorf("spawn gateway: %w", err)
}

// stopChild signals the child and releases the handle. The run ID moves
// into the stopping set so the pending exit is classified as a requested
// stop rather than a crash, even when the child dies to our SIGTERM.
func (s *Supervisor) stopChild() {
	if s.handle == nil {
		return
	}
	s.signalChild()
	s.stopping[s.handle.runID] = true
	s.handle = nil
	s.state = StateIdle
}

func (s *Supervisor) handleExit(res exitResult) {
	if s.stopping[res.runID] {
		delete(s.stopping, res.runID)
		code, signal := exitStatus(res.err)
		s.logger.Info("gateway stopped", "run_id", res.runID, "exit_code", code, "signal", signal)
		s.publish(bus.TopicProcessExited, bus.ProcessExitedEvent{
			RunID:    res.runID,
			ExitCode: code,
			Signal:   signal,
			Crashed:  false,
		})
		if s.opts.History != nil {
			if err := s.opts.History.RecordExit(res.runID, code, signal, false, time.Now()); err != nil {
				s.logger.Warn("record run exit failed", "run_id", res.runID, "error", err)
			}
		}
		return
	}
	if s.handle == nil || s.handle.runID != res.runID {
		// Stale exit from a run already cleared; nothing to do.
		return
	}
	code, signal := exitStatus(res.err)
	crashed := code != 0 || signal != ""
	if crashed {
		s.state = StateCrashed
		s.logger.Error("gateway exited abnormally", "run_id", res.runID, "exit_code", code, "signal", signal)
	} else {
		s.state = StateExited
		s.logger.Info("gateway exited", "run_id", res.runID, "exit_code", code)
	}
	s.publish(bus.TopicProcessExited, bus.ProcessExitedEvent{
		RunID:    res.runID,
		ExitCode: code,
		Signal:   signal,
		Crashed:  crashed,
	})
	if s.opts.History != nil {
		if err := s.opts.History.RecordExit(res.runID, code, signal, crashed, time.Now()); err != nil {
			s.logger.Warn("record run exit failed", "run_id", res.runID, "error", err)
		}
	}
	s.handle = nil
}

func (s *Supervisor) signalChild() {
	if s.handle == nil || s.handle.cmd.Process == nil {
		return
	}
	if err := s.handle.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("signal gateway failed", "run_id", s.handle.runID, "error", err)
	} else {
		s.logger.Info("sent SIGTERM to gateway", "run_id", s.handle.runID, "pid", s.handle.pid)
	}
}

func (s *Supervisor) streamOutput(ctx context.Context, runID, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if stream == "stderr" {
			s.logger.ErrorContext(ctx, "gateway: "+shared.Redact(line), "stream", stream)
		} else {
			s.logger.InfoContext(ctx, "gateway: "+shared.Redact(line), "stream", stream)
		}
		s.publish(bus.TopicProcessOutput, bus.ProcessOutputEvent{RunID: runID, Stream: stream, Line: line})
	}
	if err := scanner.Err(); err != nil {
		// An oversized line or read failure ends forwarding for this stream;
		// the child keeps running and the exit path is unaffected.
		s.logger.WarnContext(ctx, "gateway output stream closed", "stream", stream, "error", err)
	}
}

func (s *Supervisor) publish(topic string, payload any) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(topic, payload)
	}
}

func (s *Supervisor) childArgs() []string {
	return []string{
		"gateway",
		"--allow-unconfigured",
		"--auth", "token",
		"--token", s.opts.Token,
		"--port", strconv.Itoa(s.opts.Port),
		"--bind", "loopback",
	}
}

// childEnv returns the additions layered over the ambient environment. The
// token and port travel in both args and env so either read path works.
func (s *Supervisor) childEnv() []string {
	return []string{
		"CLAWSHELL_MANAGED=1",
		"GOCLAW_HOME=" + s.opts.StateDir,
		"GOCLAW_CONFIG_PATH=" + s.opts.ConfigPath,
		"GOCLAW_AUTH_TOKEN=" + s.opts.Token,
		"GOCLAW_PORT=" + strconv.Itoa(s.opts.Port),
		"GOCLAW_BIND=loopback",
		"GOCLAW_NO_TUI=1",
		"GOCLAW_NO_RESPAWN=1",
		"GOCLAW_NO_CHANNELS=1",
	}
}

// exitStatus extracts the exit code and terminating signal from cmd.Wait's
// error. Code is -1 when the child died to a signal.
func exitStatus(err error) (code int, signal string) {
	if err == nil {
		return 0, ""
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return -1, ws.Signal().String()
			}
			return ws.ExitStatus(), ""
		}
		return ee.ExitCode(), ""
	}
	return -1, ""
}
