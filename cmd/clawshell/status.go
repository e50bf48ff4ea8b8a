package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/basket/claw-shell/internal/config"
	"github.com/basket/claw-shell/internal/history"
	"github.com/basket/claw-shell/internal/ui"
)

func runStatusCommand(ctx context.Context, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: clawshell status")
		return 2
	}

	stateDir := config.StateDir()
	port, _, err := config.ReadGateway(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway config: %v (has the shell run yet?)\n", err)
		return 1
	}

	healthy := printHealth(ctx, port)
	printRecentRuns(ctx, stateDir)
	if !healthy {
		return 1
	}
	return 0
}

func printHealth(ctx context.Context, port int) bool {
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request: %v\n", err)
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway unreachable: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	_, _ = os.Stdout.Write(body)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		fmt.Println()
	}
	return resp.StatusCode == http.StatusOK
}

func printRecentRuns(ctx context.Context, stateDir string) {
	store, err := history.Open(stateDir)
	if err != nil {
		return
	}
	defer store.Close()

	runs, err := store.RecentRuns(ctx, 5)
	if err != nil || len(runs) == 0 {
		return
	}

	fmt.Println("\nRecent runs:")
	for _, r := range runs {
		line := fmt.Sprintf("  %s  started %s", r.ID, r.StartedAt.Local().Format(time.RFC3339))
		switch {
		case r.SpawnError != "":
			line += "  spawn failed: " + r.SpawnError
		case r.EndedAt == nil:
			line += "  running"
		case r.Signal != "":
			line += "  killed by " + r.Signal
		case r.ExitCode != nil:
			line += fmt.Sprintf("  exit %d", *r.ExitCode)
		}
		fmt.Println(line)
	}
}

func runURLCommand(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: clawshell url")
		return 2
	}
	port, token, err := config.ReadGateway(config.StateDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway config: %v (has the shell run yet?)\n", err)
		return 1
	}
	fmt.Println(ui.BuildURL(port, token))
	return 0
}
