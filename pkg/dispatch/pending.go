package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

// Pending errors.
var (
	// ErrRequestTimeout indicates no response arrived in time.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrPendingClosed indicates the tracker was shut down while the
	// request was in flight.
	ErrPendingClosed = errors.New("pending tracker closed")
)

type outcome struct {
	env *wire.Envelope
	err error
}

// Pending tracks requests awaiting correlated responses, keyed by the
// request envelope's ID.
type Pending struct {
	mu     sync.Mutex
	calls  map[uint64]chan outcome
	closed bool
}

// NewPending creates an empty tracker.
func NewPending() *Pending {
	return &Pending{
		calls: make(map[uint64]chan outcome),
	}
}

// Add registers a request ID and returns the call to wait on.
func (p *Pending) Add(id uint64) (*Call, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPendingClosed
	}
	ch := make(chan outcome, 1)
	p.calls[id] = ch
	return &Call{pending: p, id: id, ch: ch}, nil
}

// Resolve delivers a response to the call matching its CorrelationID.
// Returns false when no call is waiting, which the caller typically
// logs and drops.
func (p *Pending) Resolve(env *wire.Envelope) bool {
	p.mu.Lock()
	ch, exists := p.calls[env.CorrelationID]
	if exists {
		delete(p.calls, env.CorrelationID)
	}
	p.mu.Unlock()

	if !exists {
		return false
	}
	ch <- outcome{env: env}
	return true
}

// Fail rejects one in-flight call with err.
func (p *Pending) Fail(id uint64, err error) bool {
	p.mu.Lock()
	ch, exists := p.calls[id]
	if exists {
		delete(p.calls, id)
	}
	p.mu.Unlock()

	if !exists {
		return false
	}
	ch <- outcome{err: err}
	return true
}

// FailAll rejects every in-flight call with err and refuses new Adds.
// Used on connection close.
func (p *Pending) FailAll(err error) {
	p.mu.Lock()
	calls := p.calls
	p.calls = make(map[uint64]chan outcome)
	p.closed = true
	p.mu.Unlock()

	for _, ch := range calls {
		ch <- outcome{err: err}
	}
}

// Len reports the number of in-flight calls.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Call is one in-flight request.
type Call struct {
	pending *Pending
	id      uint64
	ch      chan outcome
}

// Wait blocks until a response arrives, the timeout expires, or ctx is
// cancelled. A zero timeout waits on ctx alone.
func (c *Call) Wait(ctx context.Context, timeout time.Duration) (*wire.Envelope, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case out := <-c.ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.env, nil
	case <-timer:
		c.drop()
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		c.drop()
		return nil, ctx.Err()
	}
}

// drop removes the call so a late response is discarded instead of
// being delivered to nobody.
func (c *Call) drop() {
	c.pending.mu.Lock()
	delete(c.pending.calls, c.id)
	c.pending.mu.Unlock()
}
