package ui

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"
)

// openBrowser launches the platform browser opener. Overridable in tests.
var openBrowser = func(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// probe issues a GET against the control UI URL. A connection error or a 5xx
// response means the gateway is not serving yet.
func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe control UI: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("control UI returned %s", resp.Status)
	}
	return nil
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Second}
}

// BrowserSurface probes the control UI and, once it answers, opens it in the
// system browser.
type BrowserSurface struct {
	Client *http.Client
}

func (s *BrowserSurface) LoadURL(ctx context.Context, url string) error {
	client := s.Client
	if client == nil {
		client = defaultClient()
	}
	if err := probe(ctx, client, url); err != nil {
		return err
	}
	if err := openBrowser(url); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// ProbeSurface only verifies the control UI answers. Used in daemon and
// console modes where nothing should pop up on the user's desktop.
type ProbeSurface struct {
	Client *http.Client
}

func (s *ProbeSurface) LoadURL(ctx context.Context, url string) error {
	client := s.Client
	if client == nil {
		client = defaultClient()
	}
	return probe(ctx, client, url)
}
