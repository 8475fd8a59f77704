// Package dispatch routes decoded envelopes to registered handlers and
// tracks in-flight requests awaiting correlated responses.
//
// The router is transport-agnostic: it never sends anything itself.
// Dispatch returns the reply envelope to send (if any) and the
// connection layer owns delivery. Reserved kinds (auth., ctl.) are
// rejected at registration and never reach user handlers.
package dispatch
