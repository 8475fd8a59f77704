// Command wsbase-echo-server is a reference responder.
//
// It accepts authenticated websocket peers, answers app.echo requests
// with the payload it received, and optionally announces itself over
// mDNS so clients on the same network can find it without a URL.
//
// Usage:
//
//	wsbase-echo-server -pubkey <hex> [flags]
//
// Flags:
//
//	-config string   Configuration file path (YAML)
//	-listen string   Listen address override (host:port)
//	-pubkey string   Hex-encoded ed25519 public key of the trusted client
//	-advertise       Announce the server over mDNS
//	-name string     mDNS instance name (default "wsbase-echo")
//	-verbose         Log protocol events to stderr
//
// Generate a client key pair with:
//
//	wsbase-echo-client -keygen
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/wsbase-protocol/wsbase-go/pkg/auth"
	"github.com/wsbase-protocol/wsbase-go/pkg/config"
	"github.com/wsbase-protocol/wsbase-go/pkg/discovery"
	"github.com/wsbase-protocol/wsbase-go/pkg/dispatch"
	"github.com/wsbase-protocol/wsbase-go/pkg/log"
	"github.com/wsbase-protocol/wsbase-go/pkg/server"
	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

type echoPayload struct {
	Text string `cbor:"1,keyasint"`
}

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path (YAML)")
		listen     = flag.String("listen", "", "Listen address override (host:port)")
		pubkeyHex  = flag.String("pubkey", "", "Hex-encoded ed25519 public key of the trusted client")
		advertise  = flag.Bool("advertise", false, "Announce the server over mDNS")
		name       = flag.String("name", "wsbase-echo", "mDNS instance name")
		verbose    = flag.Bool("verbose", false, "Log protocol events to stderr")
	)
	flag.Parse()

	if *pubkeyHex == "" {
		fmt.Fprintln(os.Stderr, "missing -pubkey; generate one with: wsbase-echo-client -keygen")
		os.Exit(2)
	}
	pubkey, err := hex.DecodeString(*pubkeyHex)
	if err != nil {
		fatal("invalid -pubkey: %v", err)
	}
	verifier, err := auth.PublicVerifier(pubkey)
	if err != nil {
		fatal("invalid -pubkey: %v", err)
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fatal("loading config: %v", err)
		}
	}
	if *listen != "" {
		host, portStr, err := net.SplitHostPort(*listen)
		if err != nil {
			fatal("invalid -listen: %v", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			fatal("invalid -listen port: %v", err)
		}
		cfg.Hostname = host
		cfg.Port = port
	}

	responder, err := auth.NewResponder(auth.ResponderConfig{
		Verifier:      verifier,
		ExpiryWindow:  cfg.AuthExpiryWindow.Std(),
		SkewTolerance: cfg.AuthSkewTolerance.Std(),
	})
	if err != nil {
		fatal("creating responder: %v", err)
	}

	router := dispatch.NewRouter()
	if err := router.Register("app.echo", handleEcho); err != nil {
		fatal("registering handler: %v", err)
	}

	var logger log.Logger = log.NoopLogger{}
	counter := &eventCounter{}
	if *verbose {
		logger = log.NewMultiLogger(
			log.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil))),
			counter,
		)
	}

	srv, err := server.FromConfig(cfg, responder, router, logger)
	if err != nil {
		fatal("creating server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		fatal("starting server: %v", err)
	}
	scheme := "ws"
	if cfg.TLSEnabled() {
		scheme = "wss"
	}
	fmt.Printf("listening on %s://%s/ws\n", scheme, srv.Addr())

	var adv *discovery.Advertiser
	if *advertise {
		adv = discovery.NewAdvertiser(discovery.AdvertiserConfig{})
		err := adv.Advertise(&discovery.Announcement{
			InstanceName: *name,
			Port:         uint16(cfg.Port),
			TLS:          cfg.TLSEnabled(),
		})
		if err != nil {
			fatal("advertising: %v", err)
		}
		fmt.Printf("advertising %q as %s\n", *name, discovery.ServiceType)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down...")
	if adv != nil {
		adv.Stop()
	}
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "stopping server: %v\n", err)
	}
	if *verbose {
		fmt.Printf("captured %d protocol events\n", counter.count.Load())
	}
}

// eventCounter tallies protocol events alongside the console sink.
type eventCounter struct {
	count atomic.Uint64
}

func (c *eventCounter) Log(log.Event) { c.count.Add(1) }

func handleEcho(ctx context.Context, env *wire.Envelope) (any, error) {
	var p echoPayload
	if err := env.DecodePayload(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
