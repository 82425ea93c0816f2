// Package audit implements async event dispatching for security-relevant
// operations.
//
// # Components
//
//   - [Sink] is the interface for event consumers. Implementations: zerolog,
//     NATS, channel, JSON writer, no-op, and [MultiSink] for fan-out.
//   - [Dispatcher] is a buffered async relay that either drops or blocks when full.
//   - [Event] is the audit record: id, timestamp, type, user, session, IP, outcome.
//
// This package owns buffering and delivery. It does not decide which events
// to emit; the engine does.
package audit
