package internaldefs

import (
	"github.com/MrEthical07/handson"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   handson.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   handson.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: handson.MetricLoginSuccess, Name: "handson_login_success_total", Help: "Logins that issued a token."},
	{ID: handson.MetricLoginFailure, Name: "handson_login_failure_total", Help: "Logins that did not issue a token."},
	{ID: handson.MetricTokenIssueFailure, Name: "handson_token_issue_failure_total", Help: "Token signing failures."},
	{ID: handson.MetricRegisterSuccess, Name: "handson_register_success_total", Help: "Created accounts."},
	{ID: handson.MetricRegisterFailure, Name: "handson_register_failure_total", Help: "Rejected registrations."},
	{ID: handson.MetricRegisterDuplicate, Name: "handson_register_duplicate_total", Help: "Registrations rejected for a taken username or email."},
	{ID: handson.MetricRequestAdmitted, Name: "handson_requests_admitted_total", Help: "Requests admitted by the rate limiter."},
	{ID: handson.MetricRateLimitHit, Name: "handson_rate_limit_hit_total", Help: "Requests rejected by the rate limiter."},
	{ID: handson.MetricRateLimitStoreError, Name: "handson_rate_limit_store_error_total", Help: "Rate tracker faults."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: handson.MetricLoginLatency, Name: "handson_login_latency_seconds", Help: "Login latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "handson_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds, matching the
// engine's millisecond buckets. The final engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
