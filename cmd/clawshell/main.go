// Command clawshell supervises a local goclaw gateway: it converges the
// persisted gateway document, spawns the gateway child with an isolated
// environment, and attaches the control UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/claw-shell/internal/bus"
	"github.com/basket/claw-shell/internal/config"
	"github.com/basket/claw-shell/internal/history"
	"github.com/basket/claw-shell/internal/otel"
	"github.com/basket/claw-shell/internal/shared"
	"github.com/basket/claw-shell/internal/supervisor"
	"github.com/basket/claw-shell/internal/telemetry"
	"github.com/basket/claw-shell/internal/tui"
	"github.com/basket/claw-shell/internal/ui"
)

const version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `clawshell %s - local gateway supervisor

USAGE:
  %s                          Start the gateway and attach the control UI
  %s -daemon                  Start without the console (logs to stdout)

SUBCOMMANDS:
  %s status                   Show gateway health (/healthz) and recent runs
  %s url                      Print the authenticated control UI URL
  %s logs                     Tail the gateway event stream over websocket
  %s doctor [-json]           Run diagnostic checks

FLAGS:
`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  CLAWSHELL_HOME          State directory (default: platform config dir)
  CLAWSHELL_NO_TUI        Set to 1 to disable the console
  CLAWSHELL_GATEWAY_PATH  Gateway executable override
`)
}

func main() {
	interactive := isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("CLAWSHELL_NO_TUI") == ""
	daemon := flag.Bool("daemon", false, "run without the console, logs to stdout")
	flag.Usage = printUsage
	flag.Parse()

	if *daemon {
		interactive = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "url":
			os.Exit(runURLCommand(args[1:]))
		case "logs":
			os.Exit(runLogsCommand(ctx, args[1:]))
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	// Quiet logs (file-only) in interactive mode so the console stays clean.
	os.Exit(runShell(ctx, interactive))
}

func runShell(ctx context.Context, interactive bool) int {
	// One trace ID covers the whole shell lifecycle; the log handler picks
	// it up from the context on every *Context call.
	ctx = shared.WithTraceID(ctx, shared.NewTraceID())

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.StateDir, cfg.LogLevel, interactive)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	provider, err := otel.Init(ctx, otel.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := otel.NewMetrics(provider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}

	ctx, span := otel.StartSpan(ctx, provider.Tracer, "shell.bootstrap")
	port, token, err := config.EnsureGateway(cfg.StateDir, logger)
	span.End()
	if err != nil {
		fatalStartup(logger, "E_GATEWAY_CONFIG", err)
	}
	logger.InfoContext(ctx, "gateway config ready", "port", port, "config_fingerprint", cfg.Fingerprint())

	store, err := history.Open(cfg.StateDir)
	if err != nil {
		fatalStartup(logger, "E_HISTORY_OPEN", err)
	}
	defer store.Close()

	eventBus := bus.New()
	go recordMetrics(ctx, eventBus, metrics)

	sup := supervisor.New(supervisor.Options{
		GatewayPath: cfg.GatewayPath,
		StateDir:    cfg.StateDir,
		ConfigPath:  config.GatewayPath(cfg.StateDir),
		Port:        port,
		Token:       token,
		Bus:         eventBus,
		Logger:      logger,
		History:     store,
	})
	supCtx, supCancel := context.WithCancel(context.Background())
	defer supCancel()
	go sup.Run(supCtx)

	watcher := config.NewWatcher(cfg.StateDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for ev := range watcher.Events() {
				logger.Warn("config file edited while running; restart to apply", "path", ev.Path)
			}
		}()
	}

	// Gateway config is flushed; spawn, then build the URL the child will serve.
	if err := sup.Start(ctx); err != nil {
		logger.ErrorContext(ctx, "gateway not started", "error", err)
	}

	controlURL := ui.BuildURL(port, token)
	if cfg.Surface != "none" {
		var surface ui.Surface
		if cfg.Surface == "browser" && interactive {
			surface = &ui.BrowserSurface{}
		} else {
			surface = &ui.ProbeSurface{}
		}
		controller := ui.NewController(surface, eventBus, logger,
			ui.WithMaxRetries(cfg.Attach.MaxRetries),
			ui.WithInterval(cfg.AttachInterval()),
		)
		go func() {
			ctx, span := otel.StartClientSpan(ctx, provider.Tracer, "ui.attach",
				otel.AttrPort.Int(port), otel.AttrSurface.String(cfg.Surface))
			defer span.End()
			if err := controller.Attach(ctx, controlURL); err != nil {
				logger.ErrorContext(ctx, "control UI unavailable; gateway left running", "error", err)
			}
		}()
	}

	if interactive {
		if err := tui.Run(ctx, eventBus, sup, controlURL, port); err != nil && ctx.Err() == nil {
			logger.Error("console exited", "error", err)
		}
	} else {
		logger.InfoContext(ctx, "running in daemon mode", "url", controlURL)
		<-ctx.Done()
	}

	// Shutdown: best-effort SIGTERM to the child, then stop the loop.
	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		logger.Warn("stop gateway", "error", err)
	}
	logger.InfoContext(ctx, "shell exiting")
	return 0
}

// recordMetrics bumps counters off the bus so instrumentation stays out of
// the supervisor itself.
func recordMetrics(ctx context.Context, b *bus.Bus, m *otel.Metrics) {
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)
	starts := map[string]time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			switch ev.Topic {
			case bus.TopicProcessStarted:
				if p, ok := ev.Payload.(bus.ProcessStartedEvent); ok {
					m.SpawnsTotal.Add(ctx, 1)
					m.ChildActive.Add(ctx, 1)
					starts[p.RunID] = time.Now()
				}
			case bus.TopicProcessSpawnError:
				m.SpawnErrors.Add(ctx, 1)
			case bus.TopicProcessExited:
				if p, ok := ev.Payload.(bus.ProcessExitedEvent); ok {
					m.ChildActive.Add(ctx, -1)
					if p.Crashed {
						m.ChildCrashes.Add(ctx, 1)
					}
					if started, ok := starts[p.RunID]; ok {
						m.ChildLifetime.Record(ctx, time.Since(started).Seconds())
						delete(starts, p.RunID)
					}
				}
			case bus.TopicAttachRetry:
				m.AttachRetries.Add(ctx, 1)
			case bus.TopicAttachFailed:
				m.AttachFailures.Add(ctx, 1)
			}
		}
	}
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(os.Stderr, "[%s] [ERROR] startup failure reason_code=%s error=%q\n",
			time.Now().UTC().Format(time.RFC3339), reasonCode, message)
	}
	os.Exit(1)
}
