// Command wsbase-echo-client is a reference initiator.
//
// It connects to a wsbase server, authenticates with an ed25519 key,
// and offers an interactive prompt for sending echo requests and pings.
//
// Usage:
//
//	wsbase-echo-client -keygen
//	wsbase-echo-client -seed <hex> -url ws://localhost:8380/ws
//	wsbase-echo-client -seed <hex> -discover -name wsbase-echo
//
// Flags:
//
//	-keygen          Generate a key pair and exit
//	-seed string     Hex-encoded 32-byte ed25519 seed
//	-url string      Server websocket URL
//	-discover        Locate the server via mDNS instead of -url
//	-name string     mDNS instance name to look for (default "wsbase-echo")
//	-insecure        Skip TLS certificate verification (self-signed servers)
//	-verbose         Log protocol events to stderr
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/auth"
	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
	"github.com/wsbase-protocol/wsbase-go/pkg/discovery"
	"github.com/wsbase-protocol/wsbase-go/pkg/log"
	"github.com/wsbase-protocol/wsbase-go/pkg/transport"
)

func main() {
	var (
		keygen   = flag.Bool("keygen", false, "Generate a key pair and exit")
		seedHex  = flag.String("seed", "", "Hex-encoded 32-byte ed25519 seed")
		url      = flag.String("url", "ws://localhost:8380/ws", "Server websocket URL")
		discover = flag.Bool("discover", false, "Locate the server via mDNS instead of -url")
		name     = flag.String("name", "wsbase-echo", "mDNS instance name to look for")
		insecure = flag.Bool("insecure", false, "Skip TLS certificate verification")
		verbose  = flag.Bool("verbose", false, "Log protocol events to stderr")
	)
	flag.Parse()

	if *keygen {
		runKeygen()
		return
	}

	if *seedHex == "" {
		fmt.Fprintln(os.Stderr, "missing -seed; generate one with -keygen")
		os.Exit(2)
	}
	seed, err := hex.DecodeString(*seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		fatal("invalid -seed: want %d hex-encoded bytes", ed25519.SeedSize)
	}
	cred, err := auth.CredentialFromSeed(seed)
	if err != nil {
		fatal("loading credential: %v", err)
	}
	initiator, err := auth.NewInitiator(cred, 0)
	if err != nil {
		fatal("creating initiator: %v", err)
	}

	target := *url
	if *discover {
		target, err = discoverServer(*name)
		if err != nil {
			fatal("discovery: %v", err)
		}
		fmt.Printf("discovered %s\n", target)
	}

	var logger log.Logger = log.NoopLogger{}
	if *verbose {
		logger = log.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}

	dialer := &transport.WebsocketDialer{URL: target}
	if *insecure {
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, err := connection.New(connection.Options{
		Dialer:    dialer,
		Initiator: initiator,
		Logger:    logger,
		OnStateChange: func(oldState, newState connection.State) {
			fmt.Printf("\r[%s -> %s]\n", oldState, newState)
		},
	})
	if err != nil {
		fatal("creating connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("connecting to %s...\n", target)
	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = conn.Connect(connectCtx)
	connectCancel()
	if err != nil {
		fatal("connect: %v", err)
	}
	fmt.Printf("connected, session token %x\n", conn.SessionToken()[:8])

	runInteractive(ctx, cancel, conn)
}

func runKeygen() {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fatal("generating key: %v", err)
	}
	fmt.Printf("seed:   %x\n", priv.Seed())
	fmt.Printf("pubkey: %x\n", priv.Public().(ed25519.PublicKey))
	fmt.Println()
	fmt.Println("start the server with:  wsbase-echo-server -pubkey <pubkey>")
	fmt.Println("start the client with:  wsbase-echo-client -seed <seed>")
}

func discoverServer(instanceName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), discovery.BrowseTimeout)
	defer cancel()

	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	svc, err := browser.FindByName(ctx, instanceName)
	if err != nil {
		return "", err
	}
	if len(svc.Addresses) == 0 {
		return "", discovery.ErrNotFound
	}
	return svc.URL(svc.Addresses[0]), nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
