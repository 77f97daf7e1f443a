package ratelimit

import "net/http"

type exemptHandler struct {
	http.Handler
}

func (exemptHandler) RateLimitExempt() {}

// Exempt marks h so the gate never counts requests routed to it.
func Exempt(h http.Handler) http.Handler {
	return exemptHandler{Handler: h}
}

// IsExempt reports whether h was wrapped with [Exempt] or otherwise
// declares a RateLimitExempt method.
func IsExempt(h http.Handler) bool {
	_, ok := h.(interface{ RateLimitExempt() })
	return ok
}
