package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

type echoPayload struct {
	Text string `cbor:"1,keyasint"`
}

// runInteractive drives the command prompt until the user quits or the
// connection terminates.
func runInteractive(ctx context.Context, cancel context.CancelFunc, conn *connection.Conn) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wsbase> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fatal("failed to create readline: %v", err)
	}
	defer rl.Close()

	go func() {
		<-conn.Done()
		fmt.Fprintln(rl.Stdout(), "connection terminated")
		rl.Close()
		cancel()
	}()

	printHelp(rl)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			printHelp(rl)

		case "echo", "e":
			cmdEcho(ctx, rl, conn, strings.Join(args, " "))

		case "ping", "p":
			cmdPing(ctx, rl, conn)

		case "status", "s":
			cmdStatus(rl, conn)

		case "quit", "exit", "q":
			fmt.Fprintln(rl.Stdout(), "exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(rl.Stdout(), "unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func printHelp(rl *readline.Instance) {
	fmt.Fprintln(rl.Stdout(), `
Commands:
  echo <text>  - Send an echo request and print the reply
  ping         - Measure round-trip time
  status       - Show connection state
  help         - Show this help
  quit         - Exit`)
}

func cmdEcho(ctx context.Context, rl *readline.Instance, conn *connection.Conn, text string) {
	if text == "" {
		fmt.Fprintln(rl.Stdout(), "usage: echo <text>")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := conn.Request(reqCtx, "app.echo", &echoPayload{Text: text}, 0)
	if err != nil {
		fmt.Fprintf(rl.Stdout(), "request failed: %v\n", err)
		return
	}
	if resp.Status != wire.StatusSuccess {
		fmt.Fprintf(rl.Stdout(), "server returned %s\n", resp.Status)
		return
	}

	var got echoPayload
	if err := resp.DecodePayload(&got); err != nil {
		fmt.Fprintf(rl.Stdout(), "bad reply payload: %v\n", err)
		return
	}
	fmt.Fprintf(rl.Stdout(), "%s (%.1fms)\n", got.Text, float64(time.Since(start).Microseconds())/1000)
}

func cmdPing(ctx context.Context, rl *readline.Instance, conn *connection.Conn) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rtt, err := conn.Ping(pingCtx)
	if err != nil {
		fmt.Fprintf(rl.Stdout(), "ping failed: %v\n", err)
		return
	}
	fmt.Fprintf(rl.Stdout(), "pong in %.1fms\n", float64(rtt.Microseconds())/1000)
}

func cmdStatus(rl *readline.Instance, conn *connection.Conn) {
	fmt.Fprintf(rl.Stdout(), "connection:    %s\n", conn.ID())
	fmt.Fprintf(rl.Stdout(), "state:         %s\n", conn.State())
	fmt.Fprintf(rl.Stdout(), "remote:        %s\n", conn.RemoteAddr())
	fmt.Fprintf(rl.Stdout(), "last activity: %s ago\n", time.Since(conn.LastActivity()).Round(time.Millisecond))
}
