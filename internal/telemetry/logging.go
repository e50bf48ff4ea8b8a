package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/basket/claw-shell/internal/shared"
)

// LogFileName is the shell's append-only log inside <stateDir>/logs.
const LogFileName = "shell.log"

// NewLogger opens the shell log file and returns a logger that writes
// human-readable lines of the form
//
//	[<RFC3339>] [<LEVEL>] <message> key=val ...
//
// to the file, and to stdout unless quiet. Secret-bearing attributes are
// redacted before they reach either sink. The returned closer owns the file.
func NewLogger(stateDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(stateDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}

	file, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer
	if quiet {
		w = file
	} else {
		w = io.MultiWriter(os.Stdout, file)
	}
	logger := slog.New(NewLineHandler(w, ParseLevel(level)))
	return logger, file, nil
}

// LineHandler is a slog.Handler that renders one bracketed line per record.
type LineHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

func NewLineHandler(w io.Writer, level slog.Level) *LineHandler {
	return &LineHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *LineHandler) Handle(ctx context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(rec.Time.UTC().Format(time.RFC3339))
	b.WriteString("] [")
	b.WriteString(rec.Level.String())
	b.WriteString("] ")
	b.WriteString(rec.Message)

	// Correlation IDs travel in the context, not in call-site attrs.
	if ctx != nil {
		if tid := shared.TraceID(ctx); tid != "-" {
			h.appendAttr(&b, slog.String("trace_id", tid))
		}
		if rid := shared.RunID(ctx); rid != "" {
			h.appendAttr(&b, slog.String("run_id", rid))
		}
	}

	for _, a := range h.attrs {
		h.appendAttr(&b, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a)
		return true
	})
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "."
	}
	clone.group += name
	return &clone
}

func (h *LineHandler) appendAttr(b *strings.Builder, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(renderValue(key, a.Value))
}

func renderValue(key string, v slog.Value) string {
	if shouldRedactKey(key) {
		return "[REDACTED]"
	}
	s := v.String()
	if v.Kind() == slog.KindString {
		if redacted, ok := redactStringValue(s); ok {
			s = redacted
		}
	}
	if strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	sensitiveTokens := []string{"token", "secret", "password", "authorization", "api_key", "apikey", "bearer"}
	for _, token := range sensitiveTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func redactStringValue(v string) (string, bool) {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "bearer ") {
		return "[REDACTED]", true
	}
	if strings.Contains(lower, "authorization:") {
		return "[REDACTED]", true
	}
	redacted := shared.Redact(v)
	if redacted != v {
		return redacted, true
	}
	return v, false
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
