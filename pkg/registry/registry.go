// Package registry tracks live connections for an application. The
// registry is an explicit object owned by the caller; there is no
// package-level global.
package registry

import (
	"sync"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
)

// Registry tracks connections by id, with their registration times.
// Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	conns map[string]entry
}

type entry struct {
	conn  *connection.Conn
	added time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]entry),
	}
}

// Add registers a connection under its id with the current time.
// Re-adding the same id replaces the previous entry.
func (r *Registry) Add(conn *connection.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = entry{conn: conn, added: time.Now()}
}

// Get returns the connection with the given id, or nil.
func (r *Registry) Get(id string) *connection.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[id].conn
}

// Remove deregisters a connection. Safe to call on absent ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// All returns a snapshot of the registered connections.
func (r *Registry) All() []*connection.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*connection.Conn, 0, len(r.conns))
	for _, e := range r.conns {
		conns = append(conns, e.conn)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes and removes every registered connection.
// Returns the number of connections closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for id, e := range r.conns {
		_ = e.conn.Close()
		delete(r.conns, id)
		closed++
	}
	return closed
}

// CloseStale closes and removes connections registered longer than
// maxAge ago that never made it past authentication, plus any that have
// been idle past maxAge. Returns the number closed.
func (r *Registry) CloseStale(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	closed := 0
	for id, e := range r.conns {
		last := e.conn.LastActivity()
		if last.IsZero() {
			last = e.added
		}
		if last.Before(cutoff) {
			_ = e.conn.Close()
			delete(r.conns, id)
			closed++
		}
	}
	return closed
}
