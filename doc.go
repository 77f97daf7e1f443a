// Package handson provides the identity core of a small user API: password
// credential handling, login with bearer-token issuance, and account
// registration.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// handson is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] contract, and value types. Flow orchestration and audit
// dispatch live under internal/. Request admission (rate limiting) lives in
// the ratelimit package and HTTP adapters in middleware.
//
// # What this package must NOT do
//
//   - Implement a database; callers supply a [UserStore].
//   - Cache user records between calls.
//   - Hold locks across user-store I/O.
package handson
