package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsbase-protocol/wsbase-go/pkg/auth"
	"github.com/wsbase-protocol/wsbase-go/pkg/config"
	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
	"github.com/wsbase-protocol/wsbase-go/pkg/dispatch"
	"github.com/wsbase-protocol/wsbase-go/pkg/transport"
	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

type echoPayload struct {
	Text string `cbor:"1,keyasint"`
}

func echoRouter(t *testing.T) *dispatch.Router {
	t.Helper()
	router := dispatch.NewRouter()
	err := router.Register("app.echo", func(ctx context.Context, env *wire.Envelope) (any, error) {
		var p echoPayload
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		return &p, nil
	})
	require.NoError(t, err)
	return router
}

func startTestServer(t *testing.T, cred *auth.Credential) *Server {
	t.Helper()

	responder, err := auth.NewResponder(auth.ResponderConfig{Verifier: cred})
	require.NoError(t, err)

	srv, err := New(Options{
		Address:   "127.0.0.1:0",
		Responder: responder,
		Router:    echoRouter(t),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dialClient(t *testing.T, srv *Server, cred *auth.Credential) *connection.Conn {
	t.Helper()

	initiator, err := auth.NewInitiator(cred, 0)
	require.NoError(t, err)

	conn, err := connection.New(connection.Options{
		Dialer: &transport.WebsocketDialer{
			URL: fmt.Sprintf("ws://%s/ws", srv.Addr()),
		},
		Initiator: initiator,
		Backoff: connection.BackoffConfig{
			Initial:     10 * time.Millisecond,
			MaxAttempts: 1,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	return conn
}

func TestServerEchoRoundTrip(t *testing.T) {
	cred, err := auth.NewCredential()
	require.NoError(t, err)

	srv := startTestServer(t, cred)
	conn := dialClient(t, srv, cred)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := conn.Request(ctx, "app.echo", &echoPayload{Text: "hello"}, 0)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, resp.Status)

	var got echoPayload
	require.NoError(t, resp.DecodePayload(&got))
	assert.Equal(t, "hello", got.Text)

	assert.Eventually(t, func() bool {
		return srv.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerRejectsUnknownCredential(t *testing.T) {
	trusted, err := auth.NewCredential()
	require.NoError(t, err)
	stranger, err := auth.NewCredential()
	require.NoError(t, err)

	srv := startTestServer(t, trusted)

	initiator, err := auth.NewInitiator(stranger, 0)
	require.NoError(t, err)

	conn, err := connection.New(connection.Options{
		Dialer: &transport.WebsocketDialer{
			URL: fmt.Sprintf("ws://%s/ws", srv.Addr()),
		},
		Initiator: initiator,
	})
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = conn.Connect(ctx)
	require.ErrorIs(t, err, connection.ErrAuthenticationFailed)

	assert.Equal(t, 0, srv.ConnectionCount())
}

func TestServerStopClosesPeers(t *testing.T) {
	cred, err := auth.NewCredential()
	require.NoError(t, err)

	responder, err := auth.NewResponder(auth.ResponderConfig{Verifier: cred})
	require.NoError(t, err)
	srv, err := New(Options{
		Address:   "127.0.0.1:0",
		Responder: responder,
		Router:    echoRouter(t),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))

	conn := dialClient(t, srv, cred)

	assert.Eventually(t, func() bool {
		return srv.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Stop())
	assert.Equal(t, 0, srv.ConnectionCount())

	// The client loses its channel and, with a single permitted retry
	// against a dead listener, gives up and terminates.
	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client connection did not terminate after server stop")
	}
}

func TestFromConfigWithGeneratedCert(t *testing.T) {
	cred, err := auth.NewCredential()
	require.NoError(t, err)
	responder, err := auth.NewResponder(auth.ResponderConfig{Verifier: cred})
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Hostname = "127.0.0.1"
	cfg.Port = 0
	cfg.CertFile = filepath.Join(dir, "server.crt")
	cfg.KeyFile = filepath.Join(dir, "server.key")
	cfg.GenerateCert = true

	srv, err := FromConfig(cfg, responder, echoRouter(t), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()

	initiator, err := auth.NewInitiator(cred, 0)
	require.NoError(t, err)
	conn, err := connection.New(connection.Options{
		Dialer: &transport.WebsocketDialer{
			URL:       fmt.Sprintf("wss://%s/ws", srv.Addr()),
			TLSConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Initiator: initiator,
	})
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	assert.Equal(t, connection.StateReady, conn.State())
}
