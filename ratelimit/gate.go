package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/handson"
)

const (
	DefaultLimit  = 100
	DefaultWindow = 60 * time.Second

	rejectMessage      = "Rate limit exceeded. Try again later."
	unavailableMessage = "Service temporarily unavailable."
	anonymousIdentity  = "anonymous"
)

// ErrTrackerPanic wraps a panic recovered from the tracker.
var ErrTrackerPanic = errors.New("rate tracker panicked")

// FailurePolicy decides what happens to a request when the tracker fails.
type FailurePolicy int

const (
	// FailOpen admits the request.
	FailOpen FailurePolicy = iota
	// FailClosed answers 503.
	FailClosed
)

func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "fail_open"
	case FailClosed:
		return "fail_closed"
	default:
		return "unknown"
	}
}

// Config is fixed for the life of a Gate. Zero Limit and Window take the
// package defaults.
type Config struct {
	Limit         int
	Window        time.Duration
	FailurePolicy FailurePolicy
	// TrustForwardedFor takes the client address from the first
	// X-Forwarded-For entry. Enable only behind a proxy that sets it.
	TrustForwardedFor bool
}

func DefaultConfig() Config {
	return Config{Limit: DefaultLimit, Window: DefaultWindow, FailurePolicy: FailOpen}
}

// Tracker counts requests per key. *rate.Tracker satisfies it.
type Tracker interface {
	RecordAndCheck(key string, limit int, windowLength time.Duration, now time.Time) (int, bool, error)
}

// IdentityFunc returns the caller identity for the key, or "" for anonymous.
// It must not reject the request.
type IdentityFunc func(*http.Request) string

// Option configures a Gate.
type Option func(*Gate)

func WithIdentity(fn IdentityFunc) Option {
	return func(g *Gate) { g.identity = fn }
}

// WithMetrics records admissions, rejections and tracker faults into m.
func WithMetrics(m *handson.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithClock overrides time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Gate is the admission middleware.
type Gate struct {
	cfg        Config
	tracker    Tracker
	identity   IdentityFunc
	metrics    *handson.Metrics
	logger     *slog.Logger
	now        func() time.Time
	retryAfter string
}

// New validates cfg and returns a Gate counting into tracker.
func New(cfg Config, tracker Tracker, opts ...Option) (*Gate, error) {
	if tracker == nil {
		return nil, errors.New("ratelimit: tracker is required")
	}
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Limit < 1 {
		return nil, fmt.Errorf("ratelimit: limit must be >= 1, got %d", cfg.Limit)
	}
	if cfg.Window < 0 {
		return nil, fmt.Errorf("ratelimit: window must be > 0, got %s", cfg.Window)
	}
	if cfg.FailurePolicy != FailOpen && cfg.FailurePolicy != FailClosed {
		return nil, fmt.Errorf("ratelimit: unknown failure policy %d", cfg.FailurePolicy)
	}

	g := &Gate{cfg: cfg, tracker: tracker}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	g.retryAfter = strconv.Itoa(int(math.Ceil(cfg.Window.Seconds())))
	return g, nil
}

// Config returns the effective configuration.
func (g *Gate) Config() Config { return g.cfg }

// Middleware wraps next with the gate. When next can report its handler for
// a request, exempt routes bypass counting.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	router, _ := next.(interface {
		Handler(*http.Request) (http.Handler, string)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if router != nil {
			if h, _ := router.Handler(r); IsExempt(h) {
				next.ServeHTTP(w, r)
				return
			}
		}

		key := g.Key(r)
		count, allowed, err := g.record(key)
		if err != nil {
			g.metrics.Inc(handson.MetricRateLimitStoreError)
			g.logger.Error("rate tracker failure",
				"key", key,
				"policy", g.cfg.FailurePolicy.String(),
				"error", err,
			)
			if g.cfg.FailurePolicy == FailClosed {
				writeMessage(w, http.StatusServiceUnavailable, unavailableMessage)
				return
			}
			g.metrics.Inc(handson.MetricRequestAdmitted)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			g.metrics.Inc(handson.MetricRateLimitHit)
			g.logger.Warn("rate limit exceeded", "key", key, "count", count, "limit", g.cfg.Limit)
			w.Header().Set("Retry-After", g.retryAfter)
			writeMessage(w, http.StatusTooManyRequests, rejectMessage)
			return
		}

		g.metrics.Inc(handson.MetricRequestAdmitted)
		next.ServeHTTP(w, r)
	})
}

// Key builds the tracker key for r.
func (g *Gate) Key(r *http.Request) string {
	identity := ""
	if g.identity != nil {
		identity = g.identity(r)
	}
	if identity == "" {
		identity = anonymousIdentity
	}

	var b strings.Builder
	b.WriteString("rate_limit_")
	b.WriteString(ClientAddress(r, g.cfg.TrustForwardedFor))
	b.WriteByte('_')
	b.WriteString(identity)
	b.WriteByte('_')
	b.WriteString(r.URL.Path)
	return b.String()
}

func (g *Gate) record(key string) (count int, allowed bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			count, allowed = 0, false
			err = fmt.Errorf("%w: %v", ErrTrackerPanic, p)
		}
	}()
	return g.tracker.RecordAndCheck(key, g.cfg.Limit, g.cfg.Window, g.now())
}

// ClientAddress returns the host part of r.RemoteAddr, or the first
// X-Forwarded-For entry when trustForwardedFor is set and the header is
// present.
func ClientAddress(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type messageBody struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(messageBody{Message: msg})
}
