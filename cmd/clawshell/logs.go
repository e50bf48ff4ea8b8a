package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/coder/websocket"

	"github.com/basket/claw-shell/internal/config"
)

// runLogsCommand tails the gateway's websocket event stream, authenticating
// with the persisted bearer token. Runs until interrupted.
func runLogsCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: clawshell logs")
		return 2
	}

	port, token, err := config.ReadGateway(config.StateDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway config: %v (has the shell run yet?)\n", err)
		return 1
	}

	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + token},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", wsURL, err)
		return 1
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	fmt.Fprintf(os.Stderr, "connected to %s\n", wsURL)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.As(err, new(websocket.CloseError)) {
				return 0
			}
			fmt.Fprintf(os.Stderr, "read: %v\n", err)
			return 1
		}
		os.Stdout.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			fmt.Println()
		}
	}
}
