package log

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// captureLogger records events for assertions.
type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestNoopLogger(t *testing.T) {
	var l NoopLogger
	l.Log(Event{}) // must not panic
}

func TestMultiLogger(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}

	m := NewMultiLogger(a, b)
	m.Log(Event{Timestamp: time.Now(), ConnectionID: "c1"})

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("event counts = %d, %d, want 1, 1", a.count(), b.count())
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(logger)

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "c1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Message: &MessageEvent{
			ID:          42,
			Kind:        "echo",
			ExpectReply: true,
		},
	})

	out := buf.String()
	for _, want := range []string{"conn_id=c1", "direction=IN", "layer=WIRE", "kind=echo", "msg_id=42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	if DirectionIn.String() != "IN" || DirectionOut.String() != "OUT" || Direction(9).String() != "UNKNOWN" {
		t.Error("Direction strings wrong")
	}
	if LayerTransport.String() != "TRANSPORT" || LayerWire.String() != "WIRE" ||
		LayerConnection.String() != "CONNECTION" || Layer(9).String() != "UNKNOWN" {
		t.Error("Layer strings wrong")
	}
	if CategoryMessage.String() != "MESSAGE" || CategoryError.String() != "ERROR" || Category(9).String() != "UNKNOWN" {
		t.Error("Category strings wrong")
	}
	if RoleInitiator.String() != "INITIATOR" || RoleResponder.String() != "RESPONDER" || Role(9).String() != "UNKNOWN" {
		t.Error("Role strings wrong")
	}
}
