// Package auth implements the challenge/response handshake that
// establishes a connection as trusted before application traffic flows.
//
// # Protocol
//
// The responder (server side) issues a challenge containing a
// single-use nonce and an expiry window. The initiator (client side)
// signs the nonce with its Ed25519 credential and returns the nonce
// with the signature. The responder verifies the signature against the
// initiator's known public credential, checks the expiry window with a
// configurable clock-skew tolerance, and rejects any nonce it has
// already seen. On success both sides share a session token derived
// with HKDF-SHA256 from the nonce and signature.
//
// A handshake attempt is final: verification failure is never retried
// at this layer. The owning connection state machine decides whether to
// redial the whole connection.
package auth
