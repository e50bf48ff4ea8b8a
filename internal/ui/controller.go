package ui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/basket/claw-shell/internal/bus"
	"github.com/basket/claw-shell/internal/shared"
)

// DefaultMaxRetries bounds attach retries after the initial attempt.
const DefaultMaxRetries = 20

// DefaultInterval is the fixed delay between attach attempts.
const DefaultInterval = 500 * time.Millisecond

// Surface loads the control UI URL somewhere the user can see it.
type Surface interface {
	LoadURL(ctx context.Context, url string) error
}

// Controller drives the attach sequence: one initial attempt, then up to
// maxRetries further attempts at a fixed interval, but only while the URL
// points at loopback.
type Controller struct {
	surface    Surface
	bus        *bus.Bus
	logger     *slog.Logger
	maxRetries int
	interval   time.Duration

	// sleep is overridable so tests can collapse the retry schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

func WithMaxRetries(n int) ControllerOption {
	return func(c *Controller) { c.maxRetries = n }
}

func WithInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.interval = d }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) ControllerOption {
	return func(c *Controller) { c.sleep = fn }
}

func NewController(surface Surface, b *bus.Bus, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		surface:    surface,
		bus:        b,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		interval:   DefaultInterval,
		sleep:      sleepWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach loads the control UI, retrying transient failures. Loopback URLs
// get up to maxRetries retries at the fixed interval; any other URL fails
// terminally on the first error. Exhausting the retry budget is terminal:
// the error is returned and ui.attach.failed published, but the gateway
// child is left running.
func (c *Controller) Attach(ctx context.Context, rawURL string) error {
	redacted := shared.Redact(rawURL)
	c.publish(bus.TopicAttachStarted, bus.AttachAttemptEvent{URL: redacted})
	c.logger.Info("attaching control UI", "url", redacted)

	err := c.surface.LoadURL(ctx, rawURL)
	if err == nil {
		c.publish(bus.TopicAttached, bus.AttachAttemptEvent{URL: redacted})
		c.logger.Info("control UI attached", "url", redacted, "attempt", 0)
		return nil
	}

	if !IsLoopbackURL(rawURL) {
		c.logger.Error("control UI attach failed on non-loopback URL; not retrying", "url", redacted, "error", err)
		c.publish(bus.TopicAttachFailed, bus.AttachAttemptEvent{URL: redacted, Err: err.Error()})
		return fmt.Errorf("attach %s: %w", redacted, err)
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		c.logger.Warn("control UI attach failed; retrying",
			"url", redacted, "attempt", attempt, "max_retries", c.maxRetries, "error", err)
		c.publish(bus.TopicAttachRetry, bus.AttachAttemptEvent{URL: redacted, Attempt: attempt, Err: err.Error()})

		if serr := c.sleep(ctx, c.interval); serr != nil {
			c.publish(bus.TopicAttachFailed, bus.AttachAttemptEvent{URL: redacted, Attempt: attempt, Err: serr.Error()})
			return fmt.Errorf("attach %s: %w", redacted, serr)
		}

		err = c.surface.LoadURL(ctx, rawURL)
		if err == nil {
			c.publish(bus.TopicAttached, bus.AttachAttemptEvent{URL: redacted, Attempt: attempt})
			c.logger.Info("control UI attached", "url", redacted, "attempt", attempt)
			return nil
		}
	}

	c.logger.Error("control UI attach failed; retry budget exhausted",
		"url", redacted, "retries", c.maxRetries, "error", err)
	c.publish(bus.TopicAttachFailed, bus.AttachAttemptEvent{URL: redacted, Attempt: c.maxRetries, Err: err.Error()})
	return fmt.Errorf("attach %s after %d retries: %w", redacted, c.maxRetries, err)
}

func (c *Controller) publish(topic string, payload bus.AttachAttemptEvent) {
	if c.bus != nil {
		c.bus.Publish(topic, payload)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
