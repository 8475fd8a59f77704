// Package schema provides payload shape validation for envelope kinds.
//
// The connection layer consults a Validator before dispatching inbound
// envelopes and before encoding outbound ones. Kinds without a registered
// schema pass validation unchanged, which keeps the protocol
// forward-compatible with kinds introduced by newer peers.
package schema

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

// Validation errors.
var (
	// ErrValidation indicates a payload failed schema validation.
	ErrValidation = errors.New("payload validation failed")

	// ErrSchemaConflict indicates a schema is already registered for the kind.
	ErrSchemaConflict = errors.New("schema already registered for kind")
)

// Validator checks that a payload matches the expected shape for a kind.
type Validator interface {
	// Validate returns nil if the payload is acceptable for the kind.
	// Implementations must treat unknown kinds as valid.
	Validate(kind string, payload cbor.RawMessage) error
}

// Func is a validation function for a single kind.
type Func func(payload cbor.RawMessage) error

// Registry is a Validator backed by per-kind validation functions.
// The zero value is not usable; create with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Func
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]Func),
	}
}

// Register binds a validation function to a kind.
// Returns ErrSchemaConflict if the kind already has a schema.
func (r *Registry) Register(kind string, fn Func) error {
	if kind == "" {
		return fmt.Errorf("%w: empty kind", ErrValidation)
	}
	if fn == nil {
		return fmt.Errorf("%w: nil validation func for kind %q", ErrValidation, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[kind]; exists {
		return fmt.Errorf("%w: %q", ErrSchemaConflict, kind)
	}
	r.schemas[kind] = fn
	return nil
}

// Validate checks the payload against the kind's registered schema.
// Kinds without a schema always validate.
func (r *Registry) Validate(kind string, payload cbor.RawMessage) error {
	r.mu.RLock()
	fn, exists := r.schemas[kind]
	r.mu.RUnlock()

	if !exists {
		return nil
	}
	if err := fn(payload); err != nil {
		if errors.Is(err, ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: kind %q: %v", ErrValidation, kind, err)
	}
	return nil
}

// Kinds returns the kinds with registered schemas.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		kinds = append(kinds, k)
	}
	return kinds
}

// Shape returns a Func that accepts payloads decodable into T.
// A nil payload is rejected; use ShapeOptional for kinds where the
// payload may be absent.
func Shape[T any]() Func {
	return func(payload cbor.RawMessage) error {
		var v T
		return wire.DecodePayload(payload, &v)
	}
}

// ShapeOptional returns a Func that accepts absent payloads and payloads
// decodable into T.
func ShapeOptional[T any]() Func {
	return func(payload cbor.RawMessage) error {
		if len(payload) == 0 {
			return nil
		}
		var v T
		return wire.DecodePayload(payload, &v)
	}
}

// None returns a Func that only accepts an absent payload.
func None() Func {
	return func(payload cbor.RawMessage) error {
		if len(payload) != 0 {
			return fmt.Errorf("%w: payload must be absent", ErrValidation)
		}
		return nil
	}
}

// NopValidator accepts every payload. Use when validation is disabled.
type NopValidator struct{}

// Validate always returns nil.
func (NopValidator) Validate(string, cbor.RawMessage) error { return nil }

// Compile-time interface satisfaction checks.
var (
	_ Validator = (*Registry)(nil)
	_ Validator = NopValidator{}
)
