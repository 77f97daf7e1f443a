// Package flows contains pure-function orchestrators for Engine operations.
//
// Each flow function (RunLogin, RunRegister) accepts a typed dependency struct
// and returns results without side-effects beyond those dependencies. This
// keeps the Engine type thin and lets tests drive every branch with stubs.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user store, hasher, token issuer,
// audit dispatcher and metrics. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import handson (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
