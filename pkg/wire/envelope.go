package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys for envelope encoding.
const (
	KeyID            = 1
	KeyKind          = 2
	KeyCorrelationID = 3
	KeyTimestamp     = 4
	KeyPayload       = 5
	KeyFlags         = 6
	KeyStatus        = 7
	KeyError         = 8
)

// Reserved kind prefixes. Envelopes with these kinds are consumed by the
// connection layer and never routed to application handlers.
const (
	AuthKindPrefix    = "auth."
	ControlKindPrefix = "ctl."
)

// Reserved envelope kinds.
const (
	KindAuthChallenge = "auth.challenge"
	KindAuthResponse  = "auth.response"
	KindAuthResult    = "auth.result"

	KindPing  = "ctl.ping"
	KindPong  = "ctl.pong"
	KindClose = "ctl.close"
)

// Flags carries per-envelope option bits.
type Flags uint8

const (
	// FlagExpectReply marks the envelope as a request. The peer must
	// answer with an envelope correlated to this envelope's ID.
	FlagExpectReply Flags = 1 << 0
)

// ExpectsReply returns true if the expect-reply flag is set.
func (f Flags) ExpectsReply() bool {
	return f&FlagExpectReply != 0
}

// Envelope is the unit of message exchange on a connection.
//
// CBOR encoding:
//
//	{
//	  1: id,             // uint64: unique per connection, never 0
//	  2: kind,           // string tag
//	  3: correlationId,  // uint64: links a response to its request
//	  4: timestamp,      // int64: unix milliseconds
//	  5: payload,        // kind-specific data (raw CBOR)
//	  6: flags,          // uint8 option bits
//	  7: status,         // uint8: response status
//	  8: error           // error detail (responses only)
//	}
//
// Envelopes are immutable once constructed.
type Envelope struct {
	ID            uint64          `cbor:"1,keyasint"`
	Kind          string          `cbor:"2,keyasint"`
	CorrelationID uint64          `cbor:"3,keyasint,omitempty"`
	Timestamp     int64           `cbor:"4,keyasint"`
	Payload       cbor.RawMessage `cbor:"5,keyasint,omitempty"`
	Flags         Flags           `cbor:"6,keyasint,omitempty"`
	Status        Status          `cbor:"7,keyasint,omitempty"`
	Error         *ErrorPayload   `cbor:"8,keyasint,omitempty"`
}

// Validate checks the envelope's structural invariants.
func (e *Envelope) Validate() error {
	if e.ID == 0 {
		return fmt.Errorf("%w: envelope id must not be 0", ErrDecode)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: envelope kind must not be empty", ErrDecode)
	}
	return nil
}

// IsReserved returns true if the envelope kind belongs to the reserved
// auth or control namespaces.
func (e *Envelope) IsReserved() bool {
	return IsReservedKind(e.Kind)
}

// IsResponse returns true if the envelope correlates to a request.
func (e *Envelope) IsResponse() bool {
	return e.CorrelationID != 0
}

// ExpectsReply returns true if the expect-reply flag is set.
func (e *Envelope) ExpectsReply() bool {
	return e.Flags.ExpectsReply()
}

// DecodePayload decodes the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	return DecodePayload(e.Payload, v)
}

// Time returns the envelope timestamp as a time.Time.
func (e *Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// IsReservedKind returns true for kinds in the auth or control namespaces.
func IsReservedKind(kind string) bool {
	return strings.HasPrefix(kind, AuthKindPrefix) ||
		strings.HasPrefix(kind, ControlKindPrefix)
}

// ErrorPayload carries error detail in a failed response.
//
// CBOR encoding:
//
//	{
//	  1: name,     // string: error class name, mappable by the caller
//	  2: message,  // string: human-readable message
//	  3: detail    // string: optional diagnostic detail
//	}
type ErrorPayload struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	Message string `cbor:"2,keyasint,omitempty"`
	Detail  string `cbor:"3,keyasint,omitempty"`
}

// ControlPayload is the payload of ctl.* envelopes.
//
// CBOR encoding:
//
//	{
//	  1: sequence  // uint32: ping/pong sequence number
//	}
type ControlPayload struct {
	Sequence uint32 `cbor:"1,keyasint,omitempty"`
}
