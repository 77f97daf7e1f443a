// Package api wires the HTTP endpoints: registration, login, user lookups,
// health and metrics.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/handson"
	"github.com/MrEthical07/handson/cache"
	"github.com/MrEthical07/handson/jwt"
	"github.com/MrEthical07/handson/middleware"
	"github.com/MrEthical07/handson/ratelimit"
)

// Authenticator is the engine surface the handlers need.
type Authenticator interface {
	Login(ctx context.Context, req handson.LoginRequest) (handson.LoginResult, error)
	Register(ctx context.Context, req handson.RegisterRequest) (int64, error)
	ParseToken(token string) (*jwt.Claims, error)
}

// HealthCheck is one named component reported by /health.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// Deps are the handler dependencies. Cache and Metrics are optional.
type Deps struct {
	Auth      Authenticator
	Users     handson.UserDirectory
	Cache     cache.Cache
	CacheTTL  time.Duration
	Health    []HealthCheck
	Metrics   http.Handler
	AdminRole string
	Logger    *slog.Logger
}

type server struct {
	Deps
}

// NewHandler returns a ServeMux with every route registered. /health and
// /metrics are marked exempt from rate limiting.
func NewHandler(d Deps) *http.ServeMux {
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = cache.DefaultTTL
	}
	if d.AdminRole == "" {
		d.AdminRole = "Admin"
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &server{Deps: d}

	guard := middleware.Guard(d.Auth)
	admin := middleware.RequireRole(d.AdminRole)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/users", guard(admin(http.HandlerFunc(s.listUsers))))
	mux.Handle("GET /api/users/profile", guard(http.HandlerFunc(s.profile)))
	mux.Handle("GET /api/users/{id}", guard(http.HandlerFunc(s.userByID)))
	mux.Handle("GET /health", ratelimit.Exempt(http.HandlerFunc(s.health)))
	if d.Metrics != nil {
		mux.Handle("GET /metrics", ratelimit.Exempt(d.Metrics))
	}
	return mux
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}
