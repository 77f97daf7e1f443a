// Package ratelimit is the admission gate: HTTP middleware that counts
// requests per client key in a fixed window and rejects callers over budget
// with 429 Too Many Requests.
//
// The gate owns no state of its own. Counting is delegated to a [Tracker]
// (normally *rate.Tracker from internal/rate) supplied at construction.
//
// # Keys
//
// Every request is counted under
//
//	rate_limit_{clientAddress}_{identity|anonymous}_{path}
//
// so the same client hitting two paths has two budgets.
//
// # Exemptions
//
// Handlers wrapped with [Exempt] are never counted. The gate asks the wrapped
// router (anything with a Handler(*http.Request) method, such as
// *http.ServeMux) which handler would serve the request and skips counting
// when that handler is exempt.
package ratelimit
