package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// TCPDialer opens length-prefix framed channels over plain TCP or TLS.
// It exists for environments where a websocket endpoint is not
// available; both sides must agree on the framing.
type TCPDialer struct {
	// Address is the host:port to dial.
	Address string

	// TLSConfig, when set, wraps the connection in TLS.
	TLSConfig *tls.Config

	// MaxMessageSize bounds individual messages. Zero means
	// DefaultMaxMessageSize.
	MaxMessageSize uint32
}

// Open dials the address and wraps the connection in framing.
func (d *TCPDialer) Open(ctx context.Context) (Channel, error) {
	var netDialer net.Dialer
	conn, err := netDialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", d.Address, err)
	}

	if d.TLSConfig != nil {
		tlsConn := tls.Client(conn, d.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake %s: %w", d.Address, err)
		}
		conn = tlsConn
	}

	return NewFramedChannel(conn, d.MaxMessageSize), nil
}

// NewFramedChannel wraps a stream connection in length-prefix framing.
// maxMessageSize of zero means DefaultMaxMessageSize. The server side
// uses this directly on accepted connections.
func NewFramedChannel(conn net.Conn, maxMessageSize uint32) Channel {
	if maxMessageSize == 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &framedChannel{
		conn:   conn,
		reader: NewFrameReaderWithMaxSize(conn, maxMessageSize),
		writer: NewFrameWriterWithMaxSize(conn, maxMessageSize),
	}
}

type framedChannel struct {
	conn   net.Conn
	reader *FrameReader
	writer *FrameWriter

	closeOnce sync.Once
	closeErr  error
}

func (c *framedChannel) Send(data []byte) error {
	if err := c.writer.WriteFrame(data); err != nil {
		if c.isClosedErr(err) {
			return ErrChannelClosed
		}
		return err
	}
	return nil
}

func (c *framedChannel) Receive() ([]byte, error) {
	data, err := c.reader.ReadFrame()
	if err != nil {
		if c.isClosedErr(err) {
			return nil, ErrChannelClosed
		}
		return nil, err
	}
	return data, nil
}

func (c *framedChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *framedChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *framedChannel) isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}
