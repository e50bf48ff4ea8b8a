package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/claw-shell/internal/config"
)

func TestWatcher_DetectsGatewayConfigChange(t *testing.T) {
	stateDir := t.TempDir()

	if _, _, err := config.EnsureGateway(stateDir, nil); err != nil {
		t.Fatalf("seed gateway config: %v", err)
	}

	w := config.NewWatcher(stateDir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	// Instead of a fixed sleep, retry the write at short intervals until the
	// watcher produces an event. This handles any platform-specific delay in
	// filesystem notification readiness.
	deadline := time.After(3 * time.Second)
	writeTick := time.NewTicker(50 * time.Millisecond)
	defer writeTick.Stop()

	touch := func() {
		if _, _, err := config.EnsureGateway(stateDir, nil); err != nil {
			t.Fatalf("rewrite gateway config: %v", err)
		}
	}
	touch()

	for {
		select {
		case ev := <-w.Events():
			if filepath.Base(ev.Path) != config.GatewayFileName {
				t.Fatalf("expected %s event, got %s", config.GatewayFileName, ev.Path)
			}
			return
		case <-writeTick.C:
			// Re-write the file in case the watcher was not yet ready.
			touch()
		case <-deadline:
			t.Fatalf("timed out waiting for %s change event", config.GatewayFileName)
		}
	}
}

func TestWatcher_IgnoresUnwatchedFiles(t *testing.T) {
	stateDir := t.TempDir()
	if _, _, err := config.EnsureGateway(stateDir, nil); err != nil {
		t.Fatalf("seed gateway config: %v", err)
	}

	w := config.NewWatcher(stateDir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	other := filepath.Join(stateDir, "scratch.txt")
	if err := os.WriteFile(other, []byte("noise"), 0o644); err != nil {
		t.Fatalf("write unwatched file: %v", err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(300 * time.Millisecond):
	}
}
