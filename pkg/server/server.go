// Package server accepts websocket peers, runs the authentication
// handshake, and hands established connections to a shared router.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"

	"github.com/wsbase-protocol/wsbase-go/pkg/auth"
	"github.com/wsbase-protocol/wsbase-go/pkg/cert"
	"github.com/wsbase-protocol/wsbase-go/pkg/config"
	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
	"github.com/wsbase-protocol/wsbase-go/pkg/dispatch"
	"github.com/wsbase-protocol/wsbase-go/pkg/log"
	"github.com/wsbase-protocol/wsbase-go/pkg/registry"
	"github.com/wsbase-protocol/wsbase-go/pkg/transport"
)

// DefaultPath is the websocket endpoint path.
const DefaultPath = "/ws"

// Options configures a Server.
type Options struct {
	// Address to listen on, e.g. ":8380" or "127.0.0.1:8380".
	Address string

	// Path for websocket upgrades. Defaults to DefaultPath.
	Path string

	// Responder verifies initiator handshakes. Required.
	Responder *auth.Responder

	// Router dispatches inbound messages for every peer. Required.
	Router *dispatch.Router

	// TLSConfig enables wss when set.
	TLSConfig *tls.Config

	// Logger for protocol events (optional).
	Logger log.Logger

	// HandshakeTimeout bounds the authentication exchange per peer.
	HandshakeTimeout time.Duration

	// KeepAlive enables periodic liveness pings on accepted peers.
	KeepAlive *connection.KeepAliveConfig

	// OnConnect runs after a peer completes the handshake.
	OnConnect func(conn *connection.Conn)

	// OnDisconnect runs when an accepted peer terminates.
	OnDisconnect func(conn *connection.Conn)
}

// Server is a websocket listener that authenticates each peer before
// registering it. All peers share one router.
type Server struct {
	opts     Options
	registry *registry.Registry

	httpServer *http.Server
	listener   net.Listener

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a server. The registry tracks accepted peers and may be
// shared with the application.
func New(opts Options) (*Server, error) {
	if opts.Responder == nil {
		return nil, errors.New("server requires a responder")
	}
	if opts.Router == nil {
		return nil, errors.New("server requires a router")
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = connection.DefaultHandshakeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.NoopLogger{}
	}

	return &Server{
		opts:     opts,
		registry: registry.New(),
	}, nil
}

// FromConfig builds a server from a configuration, generating a
// self-signed certificate when cfg.GenerateCert is set.
func FromConfig(cfg config.Config, responder *auth.Responder, router *dispatch.Router, logger log.Logger) (*Server, error) {
	opts := Options{
		Address:   cfg.ListenAddr(),
		Responder: responder,
		Router:    router,
		Logger:    logger,
	}

	if cfg.TLSEnabled() {
		if cfg.GenerateCert {
			if err := cert.Ensure(cfg.CertFile, cfg.KeyFile, cfg.Hostname); err != nil {
				return nil, fmt.Errorf("ensuring certificate: %w", err)
			}
		}
		tlsConf, err := cert.LoadTLSConfig(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS config: %w", err)
		}
		opts.TLSConfig = tlsConf
	}

	return New(opts)
}

// Start begins accepting peers. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.opts.TLSConfig != nil {
		listener = tls.NewListener(listener, s.opts.TLSConfig)
	}
	s.listener = listener
	s.running.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleUpgrade)
	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && s.running.Load() {
			s.logError(fmt.Errorf("serve: %w", err))
		}
	}()

	return nil
}

// Stop closes the listener and every accepted peer, then waits for
// per-peer goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()

	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.registry.CloseAll()
	s.wg.Wait()
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// Registry returns the registry of accepted peers.
func (s *Server) Registry() *registry.Registry { return s.registry }

// ConnectionCount returns the number of authenticated peers.
func (s *Server) ConnectionCount() int { return s.registry.Len() }

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logError(fmt.Errorf("websocket upgrade: %w", err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.servePeer(netConn)
	}()
}

// servePeer runs the handshake and supervises one accepted peer until
// it terminates.
func (s *Server) servePeer(netConn net.Conn) {
	ch := transport.AcceptChannel(netConn)

	token, err := connection.AuthenticateResponder(ch, s.opts.Responder, s.opts.HandshakeTimeout)
	if err != nil {
		ch.Close()
		s.logError(fmt.Errorf("handshake with %s: %w", netConn.RemoteAddr(), err))
		return
	}

	conn, err := connection.Accept(ch, token, connection.Options{
		Router:    s.opts.Router,
		Logger:    s.opts.Logger,
		KeepAlive: s.opts.KeepAlive,
	})
	if err != nil {
		ch.Close()
		s.logError(fmt.Errorf("accepting %s: %w", netConn.RemoteAddr(), err))
		return
	}
	if err := conn.Start(); err != nil {
		conn.Close()
		s.logError(fmt.Errorf("starting %s: %w", netConn.RemoteAddr(), err))
		return
	}

	s.registry.Add(conn)
	if s.opts.OnConnect != nil {
		s.opts.OnConnect(conn)
	}

	select {
	case <-conn.Done():
	case <-s.ctx.Done():
		conn.Close()
		<-conn.Done()
	}

	s.registry.Remove(conn.ID())
	if s.opts.OnDisconnect != nil {
		s.opts.OnDisconnect(conn)
	}
}

func (s *Server) logError(err error) {
	s.opts.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		LocalRole: log.RoleResponder,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: "accept",
		},
	})
}
