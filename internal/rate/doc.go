// Package rate implements the in-process client tracker behind the admission
// gate: a concurrent map from client key to a fixed counting window.
//
// # Window semantics
//
// Fixed windows, per key. A window opens on the first request, resets once
// its length has elapsed, and counts every request including rejected ones.
// A client can therefore see up to 2x the limit across a window boundary.
//
// Idle windows are evicted by [Tracker.Sweep], which [Tracker.StartJanitor]
// runs on a ticker.
//
// # What this package must NOT do
//
//   - Share state across processes.
//   - Decide HTTP responses (that lives in the ratelimit package).
package rate
