package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wsbase-protocol/wsbase-go/pkg/schema"
	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

// Router errors.
var (
	// ErrHandlerConflict indicates a handler is already registered for
	// the kind.
	ErrHandlerConflict = errors.New("handler already registered for kind")

	// ErrReservedKind indicates the kind uses a reserved prefix and
	// cannot carry user handlers.
	ErrReservedKind = errors.New("kind uses a reserved prefix")
)

// Handler processes an inbound envelope. The returned value becomes the
// response payload when the envelope expects a reply; it is ignored
// otherwise. A returned error becomes an error response.
type Handler func(ctx context.Context, env *wire.Envelope) (any, error)

// Sink receives envelopes no handler claimed.
type Sink func(env *wire.Envelope)

// Router maps message kinds to handlers.
//
// Registration conflicts fail fast: a second Register for the same kind
// returns ErrHandlerConflict rather than silently replacing the first.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	defSink  Sink

	// validators, when set, screen inbound payloads before handlers run.
	validators *schema.Registry
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]Handler),
	}
}

// SetValidators installs a schema registry consulted before every
// handler invocation. Nil disables validation.
func (r *Router) SetValidators(reg *schema.Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = reg
}

// SetDefault installs the sink for envelopes with no registered
// handler. Nil removes it.
func (r *Router) SetDefault(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defSink = sink
}

// Register binds a handler to a kind.
func (r *Router) Register(kind string, handler Handler) error {
	if wire.IsReservedKind(kind) {
		return fmt.Errorf("%w: %q", ErrReservedKind, kind)
	}
	if handler == nil {
		return errors.New("handler must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("%w: %q", ErrHandlerConflict, kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Unregister removes the handler for a kind, if any.
func (r *Router) Unregister(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, kind)
}

// Kinds returns the registered kinds, for inspection.
func (r *Router) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatch routes one inbound envelope.
//
// The returned envelope, when non-nil, is the reply to send back; its
// ID is zero and must be assigned by the sender. Reserved kinds return
// ErrReservedKind since the connection layer handles those before user
// dispatch.
func (r *Router) Dispatch(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error) {
	if wire.IsReservedKind(env.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrReservedKind, env.Kind)
	}

	r.mu.RLock()
	handler, exists := r.handlers[env.Kind]
	sink := r.defSink
	validators := r.validators
	r.mu.RUnlock()

	if !exists {
		if sink != nil {
			sink(env)
		}
		if env.ExpectsReply() {
			return errorReply(env, wire.StatusUnhandled, &wire.ErrorPayload{
				Name:    "UnhandledKind",
				Message: fmt.Sprintf("no handler for kind %q", env.Kind),
			}), nil
		}
		return nil, nil
	}

	if validators != nil {
		if err := validators.Validate(env.Kind, env.Payload); err != nil {
			if env.ExpectsReply() {
				return errorReply(env, wire.StatusInvalidPayload, &wire.ErrorPayload{
					Name:    "InvalidPayload",
					Message: err.Error(),
				}), nil
			}
			return nil, err
		}
	}

	result, err := handler(ctx, env)
	if !env.ExpectsReply() {
		return nil, err
	}
	if err != nil {
		return errorReply(env, wire.StatusError, ErrorPayloadFrom(err)), nil
	}

	payload, encErr := wire.EncodePayload(result)
	if encErr != nil {
		return errorReply(env, wire.StatusError, &wire.ErrorPayload{
			Name:    "EncodingError",
			Message: encErr.Error(),
		}), nil
	}
	return &wire.Envelope{
		Kind:          env.Kind,
		CorrelationID: env.ID,
		Status:        wire.StatusSuccess,
		Payload:       payload,
	}, nil
}

func errorReply(env *wire.Envelope, status wire.Status, payload *wire.ErrorPayload) *wire.Envelope {
	return &wire.Envelope{
		Kind:          env.Kind,
		CorrelationID: env.ID,
		Status:        status,
		Error:         payload,
	}
}
