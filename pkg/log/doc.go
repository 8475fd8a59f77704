// Package log provides structured protocol logging for wsbase.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, connection).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	opts.Logger = log.NewSlogAdapter(slog.Default())
//
//	// Fan out to several sinks
//	opts.Logger = log.NewMultiLogger(a, b)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame traffic (FrameEvent)
//   - Wire: decoded envelopes (MessageEvent)
//   - Connection: state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData. Decode and validation failures
// are only observable here; they never propagate to callers.
package log
