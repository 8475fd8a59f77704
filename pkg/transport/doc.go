// Package transport provides the channel abstraction the connection layer
// runs on, plus concrete adapters: websocket (the primary transport),
// length-prefixed TCP, and an in-memory pipe for tests.
//
// A Channel moves opaque binary messages; it knows nothing about envelopes.
// Adapters own message boundaries: websocket frames map 1:1 to messages,
// the TCP adapter prefixes each message with a 4-byte big-endian length.
package transport
