// Package audit implements async event dispatching for login and registration
// outcomes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, user, IP, reason.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the Engine and flow functions own that.
//   - Import handson or any sibling internal package.
package audit
