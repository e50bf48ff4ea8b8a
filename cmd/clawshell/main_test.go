package main

import (
	"context"
	"regexp"
	"testing"

	"github.com/basket/claw-shell/internal/config"
	"github.com/basket/claw-shell/internal/doctor"
	"github.com/basket/claw-shell/internal/ui"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{48}$`)

func TestFirstRunBootstrap(t *testing.T) {
	t.Setenv("CLAWSHELL_HOME", t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	port, token, err := config.EnsureGateway(cfg.StateDir, nil)
	if err != nil {
		t.Fatalf("ensure gateway: %v", err)
	}

	if port != 18789 {
		t.Fatalf("port = %d, want 18789", port)
	}
	if !hexToken.MatchString(token) {
		t.Fatalf("token %q is not 48 lowercase hex chars", token)
	}

	url := ui.BuildURL(port, token)
	want := "http://127.0.0.1:18789/?token=" + token
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}

	// Read-only commands see the same document.
	rPort, rToken, err := config.ReadGateway(cfg.StateDir)
	if err != nil {
		t.Fatalf("read gateway: %v", err)
	}
	if rPort != port || rToken != token {
		t.Fatalf("ReadGateway = (%d, %q), want (%d, %q)", rPort, rToken, port, token)
	}
}

func TestRestartKeepsIdentity(t *testing.T) {
	t.Setenv("CLAWSHELL_HOME", t.TempDir())

	stateDir := config.StateDir()
	port1, tok1, err := config.EnsureGateway(stateDir, nil)
	if err != nil {
		t.Fatalf("first boot: %v", err)
	}
	port2, tok2, err := config.EnsureGateway(stateDir, nil)
	if err != nil {
		t.Fatalf("second boot: %v", err)
	}
	if port1 != port2 || tok1 != tok2 {
		t.Fatalf("identity changed across restarts: (%d,%q) -> (%d,%q)", port1, tok1, port2, tok2)
	}
}

func TestRunDoctorCommand_JSON(t *testing.T) {
	t.Setenv("CLAWSHELL_HOME", t.TempDir())
	// Doctor reports regardless of gateway binary presence; only verify it
	// runs and returns a deterministic exit code shape.
	code := runDoctorCommand(context.Background(), []string{"-json"})
	if code != 0 && code != 1 {
		t.Fatalf("doctor exit code = %d, want 0 or 1", code)
	}
}

func TestDoctorChecksCoverShellConcerns(t *testing.T) {
	t.Setenv("CLAWSHELL_HOME", t.TempDir())
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	d := doctor.Run(context.Background(), &cfg, version)
	names := map[string]bool{}
	for _, r := range d.Results {
		names[r.Name] = true
	}
	for _, want := range []string{"Config", "Gateway Binary", "History DB"} {
		if !names[want] {
			t.Fatalf("doctor missing %s check: %v", want, names)
		}
	}
}
