package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/basket/claw-shell/internal/config"
	"github.com/basket/claw-shell/internal/history"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// execCommand is overridable so tests can fake lsof output.
var execCommand = func(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	return string(out), err
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkGatewayBinary,
		checkGatewayConfig,
		checkStateDirPermissions,
		checkPort,
		checkHistoryDB,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

// Healthy reports whether no check failed.
func (d Diagnosis) Healthy() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return false
		}
	}
	return true
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", cfg.StateDir)}
}

func checkGatewayBinary(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Gateway Binary", Status: "SKIP", Message: "Config missing"}
	}
	path, err := exec.LookPath(cfg.GatewayPath)
	if err != nil {
		return CheckResult{
			Name:    "Gateway Binary",
			Status:  "FAIL",
			Message: fmt.Sprintf("%q not found on PATH", cfg.GatewayPath),
			Detail:  "Install the gateway or set gateway_path in config.yaml",
		}
	}
	return CheckResult{Name: "Gateway Binary", Status: "PASS", Message: path}
}

func checkGatewayConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Gateway Config", Status: "SKIP", Message: "Config missing"}
	}
	path := config.GatewayPath(cfg.StateDir)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return CheckResult{Name: "Gateway Config", Status: "WARN", Message: "Not created yet (first run pending)"}
	}
	if err != nil {
		return CheckResult{Name: "Gateway Config", Status: "FAIL", Message: err.Error()}
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return CheckResult{
			Name:    "Gateway Config",
			Status:  "WARN",
			Message: fmt.Sprintf("%s has loose permissions %o", path, perm),
			Detail:  "The file holds the auth token; chmod 600 is expected",
		}
	}
	return CheckResult{Name: "Gateway Config", Status: "PASS", Message: path}
}

func checkStateDirPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}
	testFile := filepath.Join(cfg.StateDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("State dir unwritable: %v", err)}
	}
	os.Remove(testFile)
	return CheckResult{Name: "Permissions", Status: "PASS", Message: "State directory writable"}
}

func checkPort(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Port", Status: "SKIP", Message: "Config missing"}
	}
	addr := fmt.Sprintf("127.0.0.1:%d", config.DefaultPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return CheckResult{
			Name:    "Port",
			Status:  "WARN",
			Message: fmt.Sprintf("%s is in use (gateway may already be running)", addr),
			Detail:  portOccupantHint(addr),
		}
	}
	ln.Close()
	return CheckResult{Name: "Port", Status: "PASS", Message: fmt.Sprintf("%s is free", addr)}
}

func checkHistoryDB(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "History DB", Status: "SKIP", Message: "Config missing"}
	}
	store, err := history.Open(cfg.StateDir)
	if err != nil {
		return CheckResult{Name: "History DB", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer store.Close()

	if _, err := store.RecentRuns(ctx, 1); err != nil {
		return CheckResult{Name: "History DB", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	return CheckResult{Name: "History DB", Status: "PASS", Message: "Connection and schema valid"}
}

// portOccupantHint tries lsof to identify the process occupying addr.
func portOccupantHint(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("Another process is using %s. Stop it first.", addr)
	}
	out, err := execCommand("lsof", "-ti", ":"+port)
	if err == nil && strings.TrimSpace(out) != "" {
		pids := strings.TrimSpace(out)
		return fmt.Sprintf("Port %s is occupied by PID %s. Kill it with: kill %s", port, pids, pids)
	}
	return fmt.Sprintf("Port %s is already in use. Stop the existing process first.", port)
}
