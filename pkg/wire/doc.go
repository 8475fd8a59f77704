// Package wire defines the CBOR wire format for wsbase envelopes.
//
// Every frame exchanged over a connection is a single Envelope encoded
// as a CBOR map with integer keys (RFC 8949). Integer keys keep frames
// compact; the key mappings are defined as constants in this package.
//
// # Envelope Kinds
//
// The Kind tag identifies the message type. Two prefixes are reserved
// for internal use and never reach application handlers:
//   - "auth.": handshake messages (challenge, response, result)
//   - "ctl.": control messages (ping, pong, close)
//
// All other kinds are application-defined.
//
// # Requests and Responses
//
// A request is an envelope with the expect-reply flag set. The peer
// answers with an envelope whose CorrelationID equals the request's ID.
// Responses carry a Status code and, on failure, an ErrorPayload.
//
// # Nullable vs Absent
//
// Keys marked omitempty are absent when zero-valued; an absent payload
// means the message carries no data, not an empty value.
package wire
