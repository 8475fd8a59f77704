package dispatch

import (
	"fmt"
	"sync"

	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

// Namer lets an error carry a stable wire name. Handlers return errors
// implementing Namer when the peer should see a specific error name
// instead of the generic one.
type Namer interface {
	ErrorName() string
}

// Detailer lets an error attach a detail string to its wire form.
type Detailer interface {
	ErrorDetail() string
}

// WireError is the generic typed form of an error response. Translate
// returns it for names with no registered constructor.
type WireError struct {
	Name    string
	Message string
	Detail  string
}

func (e *WireError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Name, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ErrorName implements Namer, so a WireError survives a round trip.
func (e *WireError) ErrorName() string { return e.Name }

// ErrorDetail implements Detailer.
func (e *WireError) ErrorDetail() string { return e.Detail }

// ErrorPayloadFrom converts a handler error into its wire form.
func ErrorPayloadFrom(err error) *wire.ErrorPayload {
	payload := &wire.ErrorPayload{
		Name:    "Error",
		Message: err.Error(),
	}
	if named, ok := err.(Namer); ok {
		payload.Name = named.ErrorName()
	}
	if detailed, ok := err.(Detailer); ok {
		payload.Detail = detailed.ErrorDetail()
	}
	return payload
}

// ErrorMap translates wire error names back into typed errors on the
// requesting side. Unregistered names yield a *WireError.
type ErrorMap struct {
	mu           sync.RWMutex
	constructors map[string]func(*wire.ErrorPayload) error
}

// NewErrorMap creates an empty map.
func NewErrorMap() *ErrorMap {
	return &ErrorMap{
		constructors: make(map[string]func(*wire.ErrorPayload) error),
	}
}

// Register binds a constructor to a wire error name. Later
// registrations replace earlier ones.
func (m *ErrorMap) Register(name string, ctor func(*wire.ErrorPayload) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constructors[name] = ctor
}

// Translate converts an error payload to a typed error.
func (m *ErrorMap) Translate(payload *wire.ErrorPayload) error {
	if payload == nil {
		return &WireError{Name: "Error", Message: "unspecified error"}
	}

	m.mu.RLock()
	ctor, exists := m.constructors[payload.Name]
	m.mu.RUnlock()

	if exists {
		return ctor(payload)
	}
	return &WireError{
		Name:    payload.Name,
		Message: payload.Message,
		Detail:  payload.Detail,
	}
}
