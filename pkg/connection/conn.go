package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wsbase-protocol/wsbase-go/pkg/auth"
	"github.com/wsbase-protocol/wsbase-go/pkg/dispatch"
	"github.com/wsbase-protocol/wsbase-go/pkg/log"
	"github.com/wsbase-protocol/wsbase-go/pkg/transport"
	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

// Connection errors.
var (
	// ErrConnectionClosed indicates the connection is closed; pending
	// requests fail with this on explicit close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionGivenUp indicates the reconnection policy exhausted
	// its attempts or deadline.
	ErrConnectionGivenUp = errors.New("connection given up")

	// ErrAuthenticationFailed indicates the handshake was rejected.
	// Fatal: the connection closes and is never redialed automatically.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrOutboundQueueFull indicates the bounded outbound queue is full.
	ErrOutboundQueueFull = errors.New("outbound queue full")

	// ErrAlreadyStarted indicates Connect or Start was called twice.
	ErrAlreadyStarted = errors.New("connection already started")
)

// Defaults.
const (
	// DefaultQueueCapacity bounds the outbound queue.
	DefaultQueueCapacity = 64

	// DefaultRequestTimeout applies when Request gets a zero timeout.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds each handshake read.
	DefaultHandshakeTimeout = 10 * time.Second
)

// handshakeIDs reserves the low envelope ids for the handshake exchange.
const handshakeIDs = 4

// Options configures a Conn. Dialer and Initiator are required for the
// initiator role; Accept ignores both.
type Options struct {
	// Dialer opens a fresh channel per connection attempt.
	Dialer transport.Dialer

	// Initiator signs handshake challenges.
	Initiator *auth.Initiator

	// Router receives inbound envelopes. A private router is created
	// when nil.
	Router *dispatch.Router

	// Logger receives protocol events. Nil means no logging.
	Logger log.Logger

	// Backoff configures the reconnection policy.
	Backoff BackoffConfig

	// QueueCapacity bounds the outbound queue. Zero means
	// DefaultQueueCapacity.
	QueueCapacity int

	// RequestTimeout is the default Request timeout. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HandshakeTimeout bounds each handshake read. Zero means
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// KeepAlive enables periodic ctl.ping probes while Ready. Nil
	// disables them; a connection has no implicit idle timeout.
	KeepAlive *KeepAliveConfig

	// OnStateChange, when set, is called synchronously on every state
	// transition.
	OnStateChange func(oldState, newState State)
}

// Conn is one logical connection: the state machine, its pumps, and the
// request correlation state. Create with New (initiator) or Accept
// (responder).
type Conn struct {
	id   string
	role Role
	opts Options

	router  *dispatch.Router
	logger  log.Logger
	backoff *Backoff
	pending *dispatch.Pending
	errMap  *dispatch.ErrorMap

	nextID atomic.Uint64

	mu           sync.RWMutex
	state        State
	sessionToken []byte
	remoteAddr   string
	lastActivity time.Time
	started      bool

	outbound chan *wire.Envelope

	// unsent holds an envelope whose send failed, so it goes out first
	// after reconnect. Only the outbound pump touches it, and pumps
	// never overlap.
	unsent *wire.Envelope

	// acceptedCh is the pre-authenticated channel of a responder Conn.
	acceptedCh transport.Channel

	baseCtx   context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// New creates an initiator connection. Nothing happens until Connect.
func New(opts Options) (*Conn, error) {
	if opts.Dialer == nil {
		return nil, errors.New("initiator connection requires a dialer")
	}
	if opts.Initiator == nil {
		return nil, errors.New("initiator connection requires handshake credentials")
	}
	return newConn(RoleInitiator, opts), nil
}

// Accept creates a responder connection around a channel whose
// handshake already succeeded (see AuthenticateResponder). Nothing
// happens until Start.
func Accept(ch transport.Channel, sessionToken []byte, opts Options) (*Conn, error) {
	if ch == nil {
		return nil, errors.New("responder connection requires a channel")
	}
	c := newConn(RoleResponder, opts)
	c.acceptedCh = ch
	c.sessionToken = sessionToken
	c.remoteAddr = ch.RemoteAddr()
	return c, nil
}

func newConn(role Role, opts Options) *Conn {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}

	router := opts.Router
	if router == nil {
		router = dispatch.NewRouter()
	}
	logger := opts.Logger
	if logger == nil {
		logger = &log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:       uuid.NewString(),
		role:     role,
		opts:     opts,
		router:   router,
		logger:   logger,
		backoff:  NewBackoffWithConfig(opts.Backoff),
		pending:  dispatch.NewPending(),
		errMap:   dispatch.NewErrorMap(),
		state:    StateIdle,
		outbound: make(chan *wire.Envelope, opts.QueueCapacity),
		baseCtx:  ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.nextID.Store(handshakeIDs)
	return c
}

// ID returns the connection's unique id.
func (c *Conn) ID() string { return c.id }

// Role returns which side of the connection this is.
func (c *Conn) Role() Role { return c.role }

// Router exposes the dispatch router, shared or private.
func (c *Conn) Router() *dispatch.Router { return c.router }

// Errors exposes the error map used to translate error responses.
func (c *Conn) Errors() *dispatch.ErrorMap { return c.errMap }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionToken returns a copy of the token derived by the handshake,
// or nil before Ready.
func (c *Conn) SessionToken() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sessionToken == nil {
		return nil
	}
	token := make([]byte, len(c.sessionToken))
	copy(token, c.sessionToken)
	return token
}

// RemoteAddr returns the peer address of the active channel, or the
// empty string before the first channel is established.
func (c *Conn) RemoteAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteAddr
}

// LastActivity returns when the connection last received data.
func (c *Conn) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// Done is closed once the connection reaches Closed and its goroutines
// have stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// On registers a handler for a kind. Duplicate registrations fail with
// dispatch.ErrHandlerConflict.
func (c *Conn) On(kind string, handler dispatch.Handler) error {
	return c.router.Register(kind, handler)
}

// OnUnhandled installs the sink for kinds with no handler.
func (c *Conn) OnUnhandled(sink dispatch.Sink) {
	c.router.SetDefault(sink)
}

// Connect starts the initiator state machine and blocks until the
// connection first reaches Ready or terminally fails. Reconnection
// after later transport failures is automatic.
func (c *Conn) Connect(ctx context.Context) error {
	if c.role != RoleInitiator {
		return errors.New("Connect is initiator-only; use Start")
	}
	if err := c.markStarted(); err != nil {
		return err
	}

	first := make(chan error, 1)
	go c.run(first)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// Start begins pumping a responder connection.
func (c *Conn) Start() error {
	if c.role != RoleResponder {
		return errors.New("Start is responder-only; use Connect")
	}
	if err := c.markStarted(); err != nil {
		return err
	}

	first := make(chan error, 1)
	go c.run(first)
	return <-first
}

func (c *Conn) markStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	if c.state == StateClosed {
		return ErrConnectionClosed
	}
	c.started = true
	return nil
}

// Close transitions to Closed, cancels the pumps, and fails all pending
// requests with ErrConnectionClosed. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosed, "closed by caller")
		c.cancel()
		c.pending.FailAll(ErrConnectionClosed)

		c.mu.RLock()
		started := c.started
		c.mu.RUnlock()
		if !started {
			close(c.done)
		}
	})
	return nil
}

// Send submits a fire-and-forget envelope to the outbound queue.
// Returns ErrOutboundQueueFull when the bounded queue is full and
// ErrConnectionClosed after close. Reserved kinds are rejected.
func (c *Conn) Send(kind string, payload any) error {
	if wire.IsReservedKind(kind) {
		return fmt.Errorf("%w: %q", dispatch.ErrReservedKind, kind)
	}
	env, err := c.newEnvelope(kind, payload, 0)
	if err != nil {
		return err
	}
	return c.enqueue(env)
}

// Request sends a request envelope and blocks until the correlated
// response arrives, the timeout elapses (ErrRequestTimeout), or the
// connection closes. A zero timeout means the configured default.
//
// Error responses are translated through the connection's error map and
// returned as the error alongside the raw response envelope.
func (c *Conn) Request(ctx context.Context, kind string, payload any, timeout time.Duration) (*wire.Envelope, error) {
	if wire.IsReservedKind(kind) {
		return nil, fmt.Errorf("%w: %q", dispatch.ErrReservedKind, kind)
	}
	env, err := c.newEnvelope(kind, payload, wire.FlagExpectReply)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, env, timeout)
}

// Ping measures round-trip time with a ctl.ping probe.
func (c *Conn) Ping(ctx context.Context) (time.Duration, error) {
	env, err := c.newEnvelope(wire.KindPing, nil, wire.FlagExpectReply)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if _, err := c.roundTrip(ctx, env, c.opts.RequestTimeout); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *Conn) roundTrip(ctx context.Context, env *wire.Envelope, timeout time.Duration) (*wire.Envelope, error) {
	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}

	call, err := c.pending.Add(env.ID)
	if err != nil {
		return nil, ErrConnectionClosed
	}
	if err := c.enqueue(env); err != nil {
		c.pending.Fail(env.ID, err)
		return nil, err
	}

	resp, err := call.Wait(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Status.IsError() {
		return resp, c.errMap.Translate(resp.Error)
	}
	return resp, nil
}

func (c *Conn) newEnvelope(kind string, payload any, flags wire.Flags) (*wire.Envelope, error) {
	raw, err := wire.EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &wire.Envelope{
		ID:        c.nextID.Add(1),
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
		Payload:   raw,
		Flags:     flags,
	}, nil
}

func (c *Conn) enqueue(env *wire.Envelope) error {
	select {
	case <-c.baseCtx.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case c.outbound <- env:
		return nil
	default:
		return ErrOutboundQueueFull
	}
}

// run is the supervisor: it drives the state machine through dial,
// handshake, pumping, and the reconnection policy until Closed.
func (c *Conn) run(first chan<- error) {
	defer close(c.done)

	notified := false
	notify := func(err error) {
		if !notified {
			notified = true
			first <- err
		}
	}

	for {
		var ch transport.Channel

		if c.role == RoleResponder {
			ch = c.acceptedCh
		} else {
			c.setState(StateConnecting, "dialing")
			opened, err := c.opts.Dialer.Open(c.baseCtx)
			if err != nil {
				if c.closing() {
					notify(ErrConnectionClosed)
					return
				}
				c.logError(log.LayerTransport, err, "dial")
				if giveUp := c.waitBackoff(); giveUp != nil {
					c.terminate(giveUp)
					notify(giveUp)
					return
				}
				continue
			}

			c.setState(StateAuthenticating, "")
			token, err := c.authenticateInitiator(opened)
			if err != nil {
				opened.Close()
				if errors.Is(err, ErrAuthenticationFailed) {
					c.logError(log.LayerConnection, err, "handshake")
					c.terminate(err)
					notify(err)
					return
				}
				if c.closing() {
					notify(ErrConnectionClosed)
					return
				}
				c.logError(log.LayerTransport, err, "handshake")
				if giveUp := c.waitBackoff(); giveUp != nil {
					c.terminate(giveUp)
					notify(giveUp)
					return
				}
				continue
			}

			c.mu.Lock()
			c.sessionToken = token
			c.remoteAddr = opened.RemoteAddr()
			c.mu.Unlock()
			ch = opened
		}

		c.backoff.Reset()
		c.setState(StateReady, "authenticated")
		notify(nil)

		err := c.pump(ch)
		ch.Close()

		if c.closing() {
			return
		}
		if c.role == RoleResponder {
			// The initiator owns reconnection; a responder just closes.
			c.terminate(ErrConnectionClosed)
			return
		}

		c.setState(StateDegraded, errReason(err))
		if giveUp := c.waitBackoff(); giveUp != nil {
			c.terminate(giveUp)
			return
		}
	}
}

// waitBackoff consults the policy and sleeps out the delay. A nil
// result means retry; otherwise it is the terminal cause.
func (c *Conn) waitBackoff() error {
	delay, retry := c.backoff.Next()
	if !retry {
		return ErrConnectionGivenUp
	}

	c.setState(StateReconnecting, fmt.Sprintf("attempt %d in %s", c.backoff.Attempts(), delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-c.baseCtx.Done():
		return ErrConnectionClosed
	}
}

// terminate moves to Closed and fails all pending requests with cause.
func (c *Conn) terminate(cause error) {
	c.setState(StateClosed, errReason(cause))
	c.cancel()
	c.pending.FailAll(cause)
}

func (c *Conn) closing() bool {
	select {
	case <-c.baseCtx.Done():
		return true
	default:
		return false
	}
}

// pump runs the inbound and outbound pumps over one channel and returns
// the first failure. Each reconnect attempt gets fresh pumps over a
// fresh channel; the outbound queue carries over.
func (c *Conn) pump(ch transport.Channel) error {
	stop := make(chan struct{})
	errCh := make(chan error, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- c.inboundPump(ch)
	}()
	go func() {
		defer wg.Done()
		errCh <- c.outboundPump(ch, stop)
	}()

	if c.opts.KeepAlive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runKeepAlive(ch, stop)
		}()
	}

	var err error
	select {
	case err = <-errCh:
	case <-c.baseCtx.Done():
		err = ErrConnectionClosed
	}

	close(stop)
	ch.Close()
	wg.Wait()
	return err
}

// inboundPump moves messages channel→codec→router in arrival order.
// Decode failures are non-fatal: the message is dropped, an error event
// emitted, and the connection stays Ready.
func (c *Conn) inboundPump(ch transport.Channel) error {
	for {
		data, err := ch.Receive()
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()

		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			c.logError(log.LayerWire, err, "decode")
			continue
		}
		c.handleInbound(env)
	}
}

func (c *Conn) handleInbound(env *wire.Envelope) {
	c.logMessage(log.DirectionIn, env)

	switch {
	case env.Kind == wire.KindPing:
		c.replyPong(env)
	case env.Kind == wire.KindClose:
		go c.Close()
	case wire.IsReservedKind(env.Kind):
		// ctl.pong and any stray auth.* land here: responses resolve
		// a pending call, everything else is dropped.
		if env.IsResponse() && c.pending.Resolve(env) {
			return
		}
		c.logError(log.LayerConnection, fmt.Errorf("unexpected reserved kind %q", env.Kind), "inbound")
	case env.IsResponse():
		if !c.pending.Resolve(env) {
			c.logError(log.LayerConnection, fmt.Errorf("no pending request for correlation id %d", env.CorrelationID), "inbound")
		}
	default:
		reply, err := c.router.Dispatch(c.baseCtx, env)
		if err != nil {
			c.logError(log.LayerConnection, err, "dispatch")
			return
		}
		if reply != nil {
			c.sendReply(reply)
		}
	}
}

func (c *Conn) replyPong(env *wire.Envelope) {
	if !env.ExpectsReply() {
		return
	}
	c.sendReply(&wire.Envelope{
		Kind:          wire.KindPong,
		CorrelationID: env.ID,
		Status:        wire.StatusSuccess,
	})
}

// sendReply stamps and enqueues a reply built by the router or the
// control layer. A full queue drops the reply; the peer's request
// timeout covers the loss.
func (c *Conn) sendReply(reply *wire.Envelope) {
	reply.ID = c.nextID.Add(1)
	reply.Timestamp = time.Now().UnixMilli()
	if err := c.enqueue(reply); err != nil {
		c.logError(log.LayerConnection, err, "reply")
	}
}

// outboundPump moves envelopes queue→codec→channel in submission order.
func (c *Conn) outboundPump(ch transport.Channel, stop <-chan struct{}) error {
	for {
		env := c.unsent
		if env == nil {
			select {
			case env = <-c.outbound:
			case <-stop:
				return nil
			}
		}

		data, err := wire.EncodeEnvelope(env)
		if err != nil {
			// Cannot be sent, ever. Drop and move on.
			c.unsent = nil
			c.logError(log.LayerWire, err, "encode")
			continue
		}
		if err := ch.Send(data); err != nil {
			// Keep the envelope for the next channel.
			c.unsent = env
			return err
		}
		c.unsent = nil
		c.logMessage(log.DirectionOut, env)
	}
}

func (c *Conn) setState(newState State, reason string) {
	c.mu.Lock()
	oldState := c.state
	if oldState == newState || oldState.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = newState
	c.mu.Unlock()

	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerConnection,
		Category:     log.CategoryState,
		LocalRole:    c.logRole(),
		RemoteAddr:   c.currentRemoteAddr(),
		StateChange: &log.StateChangeEvent{
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(oldState, newState)
	}
}

func (c *Conn) logMessage(dir log.Direction, env *wire.Envelope) {
	msg := &log.MessageEvent{
		ID:            env.ID,
		Kind:          env.Kind,
		CorrelationID: env.CorrelationID,
		ExpectReply:   env.ExpectsReply(),
	}
	if env.IsResponse() {
		msg.Status = env.Status.String()
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    c.logRole(),
		RemoteAddr:   c.currentRemoteAddr(),
		Message:      msg,
	})
}

func (c *Conn) logError(layer log.Layer, err error, context string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        layer,
		Category:     log.CategoryError,
		LocalRole:    c.logRole(),
		RemoteAddr:   c.currentRemoteAddr(),
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}

func (c *Conn) logRole() log.Role {
	if c.role == RoleResponder {
		return log.RoleResponder
	}
	return log.RoleInitiator
}

func (c *Conn) currentRemoteAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteAddr
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
