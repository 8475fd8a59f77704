// Package connection owns one logical connection's lifecycle: the state
// machine, the authenticated handshake, the inbound/outbound pumps, and
// the reconnection policy.
//
// # States
//
// Idle → Connecting → Authenticating → Ready, with Degraded and
// Reconnecting covering transport failures, and terminal Closed.
// Handshake verification failures close the connection and are never
// redialed automatically; transport failures are.
//
// # Reconnection Strategy
//
// When the transport fails, the initiator uses exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Reset to 1s on reaching Ready
//
// A maximum attempt count and a wall-clock deadline are both optional;
// exceeding either closes the connection with ErrConnectionGivenUp.
//
// # Jitter
//
// To prevent thundering herd when multiple clients reconnect:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Ordering
//
// Outbound envelopes are sent in submission order, inbound envelopes
// dispatched in arrival order. Each pump is a single goroutine; the
// bounded outbound queue survives reconnects and drains on the next
// channel.
package connection
