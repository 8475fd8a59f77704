package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// DefaultDialTimeout bounds the websocket handshake when the caller's
// context has no deadline of its own.
const DefaultDialTimeout = 10 * time.Second

// WebsocketDialer opens websocket channels to a fixed URL.
type WebsocketDialer struct {
	// URL is the endpoint to dial, e.g. "ws://host:port/ws" or
	// "wss://host:port/ws".
	URL string

	// TLSConfig is used for wss URLs. Nil means library defaults.
	TLSConfig *tls.Config

	// Timeout bounds the dial and handshake. Zero means
	// DefaultDialTimeout.
	Timeout time.Duration
}

// Open dials the endpoint and completes the websocket handshake.
func (d *WebsocketDialer) Open(ctx context.Context) (Channel, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := ws.Dialer{
		Timeout:   timeout,
		TLSConfig: d.TLSConfig,
	}
	conn, br, _, err := dialer.Dial(ctx, d.URL)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}

	ch := newWebsocketChannel(conn, ws.StateClientSide)
	if br != nil {
		// The handshake read may have buffered frame data already.
		ch.reader = br
	}
	return ch, nil
}

// AcceptChannel wraps an already-upgraded server-side websocket
// connection, as returned by ws.UpgradeHTTP.
func AcceptChannel(conn net.Conn) Channel {
	return newWebsocketChannel(conn, ws.StateServerSide)
}

// websocketChannel adapts a gobwas/ws connection to the Channel
// interface. One websocket binary frame carries one message.
type websocketChannel struct {
	conn   net.Conn
	reader io.Reader
	state  ws.State

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newWebsocketChannel(conn net.Conn, state ws.State) *websocketChannel {
	return &websocketChannel{
		conn:   conn,
		reader: conn,
		state:  state,
		closed: make(chan struct{}),
	}
}

func (c *websocketChannel) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var err error
	if c.state == ws.StateClientSide {
		err = wsutil.WriteClientBinary(c.conn, data)
	} else {
		err = wsutil.WriteServerBinary(c.conn, data)
	}
	if err != nil {
		if c.isClosedErr(err) {
			return ErrChannelClosed
		}
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *websocketChannel) Receive() ([]byte, error) {
	rw := readWriter{c.reader, c.conn}

	var data []byte
	var err error
	if c.state == ws.StateClientSide {
		data, err = wsutil.ReadServerBinary(rw)
	} else {
		data, err = wsutil.ReadClientBinary(rw)
	}
	if err != nil {
		if c.isClosedErr(err) {
			return nil, ErrChannelClosed
		}
		var closeErr wsutil.ClosedError
		if errors.As(err, &closeErr) {
			return nil, ErrChannelClosed
		}
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	return data, nil
}

func (c *websocketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		if c.state == ws.StateClientSide {
			frame = ws.MaskFrameInPlace(frame)
		}
		c.writeMu.Lock()
		_ = ws.WriteFrame(c.conn, frame)
		c.writeMu.Unlock()

		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *websocketChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *websocketChannel) isClosedErr(err error) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

// readWriter lets wsutil read from the post-handshake buffered reader
// while answering control frames on the raw connection.
type readWriter struct {
	io.Reader
	io.Writer
}
