package registry

import (
	"testing"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
	"github.com/wsbase-protocol/wsbase-go/pkg/transport"
)

func testConn(t *testing.T) *connection.Conn {
	t.Helper()
	ch, _ := transport.Pipe()
	conn, err := connection.Accept(ch, nil, connection.Options{})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	return conn
}

func TestRegistryAddGetRemove(t *testing.T) {
	reg := New()
	conn := testConn(t)

	reg.Add(conn)
	if got := reg.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if got := reg.Get(conn.ID()); got != conn {
		t.Error("Get() did not return the registered connection")
	}
	if got := reg.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}

	reg.Remove(conn.ID())
	if got := reg.Len(); got != 0 {
		t.Errorf("Len() after remove = %d, want 0", got)
	}
	reg.Remove(conn.ID()) // absent id is fine
}

func TestRegistryCloseAll(t *testing.T) {
	reg := New()
	conns := []*connection.Conn{testConn(t), testConn(t), testConn(t)}
	for _, c := range conns {
		reg.Add(c)
	}

	if closed := reg.CloseAll(); closed != 3 {
		t.Errorf("CloseAll() = %d, want 3", closed)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
	for i, c := range conns {
		if c.State() != connection.StateClosed {
			t.Errorf("conn %d state = %v, want StateClosed", i, c.State())
		}
	}
}

func TestRegistryAll(t *testing.T) {
	reg := New()
	a, b := testConn(t), testConn(t)
	reg.Add(a)
	reg.Add(b)

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("All() length = %d, want 2", len(all))
	}
	seen := map[string]bool{}
	for _, c := range all {
		seen[c.ID()] = true
	}
	if !seen[a.ID()] || !seen[b.ID()] {
		t.Error("All() missing a registered connection")
	}
}

func TestRegistryCloseStale(t *testing.T) {
	reg := New()
	stale := testConn(t)
	fresh := testConn(t)
	reg.Add(stale)

	// Make the stale entry look old.
	reg.mu.Lock()
	e := reg.conns[stale.ID()]
	e.added = time.Now().Add(-time.Hour)
	reg.conns[stale.ID()] = e
	reg.mu.Unlock()

	reg.Add(fresh)

	if closed := reg.CloseStale(time.Minute); closed != 1 {
		t.Errorf("CloseStale() = %d, want 1", closed)
	}
	if reg.Get(stale.ID()) != nil {
		t.Error("stale connection still registered")
	}
	if reg.Get(fresh.ID()) == nil {
		t.Error("fresh connection was removed")
	}
}
