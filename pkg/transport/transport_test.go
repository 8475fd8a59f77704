package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writer := NewFrameWriter(&buf)
	reader := NewFrameReader(&buf)

	messages := [][]byte{
		[]byte("x"),
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 1000),
	}

	for _, msg := range messages {
		if err := writer.WriteFrame(msg); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}
	for i, want := range messages {
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() #%d error = %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("ReadFrame() #%d = %d bytes, want %d bytes", i, len(got), len(want))
		}
	}
}

func TestFrameWriterRejectsEmpty(t *testing.T) {
	writer := NewFrameWriter(&bytes.Buffer{})
	if err := writer.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("WriteFrame(nil) error = %v, want ErrMessageEmpty", err)
	}
}

func TestFrameWriterRejectsTooLarge(t *testing.T) {
	writer := NewFrameWriterWithMaxSize(&bytes.Buffer{}, 8)
	if err := writer.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("WriteFrame() error = %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderRejectsTooLarge(t *testing.T) {
	var buf bytes.Buffer
	writer := NewFrameWriter(&buf)
	if err := writer.WriteFrame(make([]byte, 100)); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	reader := NewFrameReaderWithMaxSize(&buf, 8)
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("ReadFrame() error = %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	writer := NewFrameWriter(&buf)
	if err := writer.WriteFrame([]byte("hello world")); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	// Cut the frame short.
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-3])
	reader := NewFrameReader(truncated)
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("ReadFrame() error = %v, want ErrFrameTruncated", err)
	}
}

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	if err := a.Send([]byte("ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != "ping" {
		t.Errorf("Receive() = %q, want %q", got, "ping")
	}

	if err := b.Send([]byte("pong")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err = a.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != "pong" {
		t.Errorf("Receive() = %q, want %q", got, "pong")
	}
}

func TestPipeSendCopiesData(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	msg := []byte("original")
	if err := a.Send(msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msg[0] = 'X'

	got, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != "original" {
		t.Errorf("Receive() = %q, want %q", got, "original")
	}
}

func TestPipeClosePropagates(t *testing.T) {
	a, b := Pipe()

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := a.Send([]byte("x")); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send() after close error = %v, want ErrChannelClosed", err)
	}
	if _, err := b.Receive(); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Receive() after peer close error = %v, want ErrChannelClosed", err)
	}
}

func TestPipeReceiveDrainsAfterClose(t *testing.T) {
	a, b := Pipe()

	if err := a.Send([]byte("last words")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v, want buffered message", err)
	}
	if string(got) != "last words" {
		t.Errorf("Receive() = %q, want %q", got, "last words")
	}
	if _, err := b.Receive(); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Receive() error = %v, want ErrChannelClosed", err)
	}
}

func TestPipeDialer(t *testing.T) {
	dialer := &PipeDialer{}
	a, _ := Pipe()
	dialer.AddChannel(a)

	ch, err := dialer.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if ch != a {
		t.Error("Open() returned unexpected channel")
	}

	if _, err := dialer.Open(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Open() with empty queue error = %v, want ErrChannelClosed", err)
	}
	if got := dialer.Attempts(); got != 2 {
		t.Errorf("Attempts() = %d, want 2", got)
	}
}

func TestPipeDialerRespectsContext(t *testing.T) {
	dialer := &PipeDialer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := dialer.Open(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Open() error = %v, want context.Canceled", err)
	}
}

func TestFramedChannelOverTCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer listener.Close()

	accepted := make(chan Channel, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- NewFramedChannel(conn, 0)
	}()

	dialer := &TCPDialer{Address: listener.Addr().String()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialer.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer client.Close()

	var server Channel
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	if err := client.Send([]byte("over tcp")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := server.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != "over tcp" {
		t.Errorf("Receive() = %q, want %q", got, "over tcp")
	}

	// Closing the server side surfaces as a closed channel on the client.
	server.Close()
	if _, err := client.Receive(); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Receive() after peer close error = %v, want ErrChannelClosed", err)
	}
}
