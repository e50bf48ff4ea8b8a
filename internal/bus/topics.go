package bus

// ProcessStartedEvent is published when the gateway child has been spawned.
type ProcessStartedEvent struct {
	RunID string // Lifecycle ID for this spawn
	PID   int    // OS process ID
	Port  int    // Gateway port the child was told to bind
}

// ProcessOutputEvent carries one line of child stdout or stderr.
type ProcessOutputEvent struct {
	RunID  string // Lifecycle ID for this spawn
	Stream string // "stdout" or "stderr"
	Line   string // Raw output line
}

// ProcessExitedEvent is published when the child exits or crashes.
// ExitCode is -1 when the child was signal-terminated; Signal is empty
// when it exited on its own.
type ProcessExitedEvent struct {
	RunID    string
	ExitCode int
	Signal   string
	Crashed  bool // non-zero exit or signal termination
}

// ProcessSpawnErrorEvent is published when the child could not be spawned.
type ProcessSpawnErrorEvent struct {
	RunID string
	Path  string // Executable path that failed
	Err   string // Spawn error detail
}

// AttachAttemptEvent is published for each control UI load attempt.
type AttachAttemptEvent struct {
	URL     string // Redacted control UI URL
	Attempt int    // 0 for the initial attempt, 1..max for retries
	Err     string // Failure detail (empty on ui.attach.succeeded)
}
