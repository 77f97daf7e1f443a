package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/handson"
	"github.com/MrEthical07/handson/cache"
	"github.com/MrEthical07/handson/internal/rate"
	"github.com/MrEthical07/handson/internal/storage/memory"
	"github.com/MrEthical07/handson/ratelimit"
)

type testEnv struct {
	engine  *handson.Engine
	store   *memory.Store
	cache   *cache.Memory
	handler http.Handler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, health ...HealthCheck) *testEnv {
	t.Helper()
	cfg := handson.DefaultConfig()
	cfg.JWT = handson.JWTConfig{
		Secret:   []byte("api-test-secret-0123456789abcdefghij"),
		Issuer:   "handson",
		Audience: "handson-clients",
	}
	cfg.Password.SaltLength = 16
	cfg.Registration.AllowSelfAssignedRoles = true

	store := memory.New()
	engine, err := handson.New().WithConfig(cfg).WithUserStore(store).WithLogger(quietLogger()).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	c := cache.NewMemory()
	h := NewHandler(Deps{
		Auth:    engine,
		Users:   store,
		Cache:   c,
		Health:  health,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") }),
		Logger:  quietLogger(),
	})
	return &testEnv{engine: engine, store: store, cache: c, handler: h}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) registerAndLogin(t *testing.T, username string, roles ...string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", registerRequest{
		Username: username, Email: username + "@example.com",
		Password: "pw-" + username, ConfirmPassword: "pw-" + username, Roles: roles,
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d %s", username, rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/api/auth/login", loginRequest{Username: username, Password: "pw-" + username}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d", username, rec.Code)
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Token == "" || resp.ExpiresAt.IsZero() {
		t.Fatalf("unexpected login response %+v", resp)
	}
	return resp.Token
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var m messageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode message %q: %v", rec.Body.String(), err)
	}
	return m.Message
}

func TestRegisterRejectionsAreGeneric(t *testing.T) {
	env := newEnv(t)
	env.registerAndLogin(t, "alice")

	cases := []registerRequest{
		{Username: "bob", Email: "bob@example.com", Password: "a", ConfirmPassword: "b"},
		{Username: "alice", Email: "x@example.com", Password: "a", ConfirmPassword: "a"},
		{Username: "carol", Email: "alice@example.com", Password: "a", ConfirmPassword: "a"},
		{Username: "", Email: "d@example.com", Password: "a", ConfirmPassword: "a"},
	}
	for _, body := range cases {
		rec := env.do(t, http.MethodPost, "/api/auth/register", body, "")
		if rec.Code != http.StatusBadRequest || message(t, rec) != "User registration failed" {
			t.Fatalf("%+v: expected generic 400, got %d %s", body, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, http.MethodPost, "/api/auth/register", "{not json", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestLoginResponses(t *testing.T) {
	env := newEnv(t)
	env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Username: "alice", Password: "wrong"}, "")
	if rec.Code != http.StatusUnauthorized || message(t, rec) != "Invalid username or password" {
		t.Fatalf("expected 401, got %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Username: "ghost", Password: "wrong"}, "")
	if rec.Code != http.StatusUnauthorized || message(t, rec) != "Invalid username or password" {
		t.Fatalf("expected indistinguishable 401, got %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Password: "x"}, "")
	if rec.Code != http.StatusBadRequest || message(t, rec) != "Username is required" {
		t.Fatalf("expected username required, got %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Username: "alice"}, "")
	if rec.Code != http.StatusBadRequest || message(t, rec) != "Password is required" {
		t.Fatalf("expected password required, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestInactiveUserCannotLogin(t *testing.T) {
	env := newEnv(t)
	env.registerAndLogin(t, "alice")
	u, _ := env.store.FindByUsername(context.Background(), "alice")
	env.store.SetActive(u.ID, false)

	rec := env.do(t, http.MethodPost, "/api/auth/login", loginRequest{Username: "alice", Password: "pw-alice"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive user, got %d", rec.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	env := newEnv(t)
	userToken := env.registerAndLogin(t, "alice")
	adminToken := env.registerAndLogin(t, "root", "Admin")

	if rec := env.do(t, http.MethodGet, "/api/users", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/users", nil, userToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/users", nil, adminToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("unexpected list %s err=%v", rec.Body.String(), err)
	}
	if strings.Contains(rec.Body.String(), "salt") || strings.Contains(rec.Body.String(), "hash") {
		t.Fatal("profile leaked credential fields")
	}

	rec = env.do(t, http.MethodGet, "/api/users/profile", nil, userToken)
	var p Profile
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &p) != nil || p.Username != "alice" {
		t.Fatalf("unexpected profile %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/users/2", nil, userToken)
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &p) != nil || p.Username != "root" {
		t.Fatalf("unexpected user 2 %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/api/users/99", nil, userToken); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/users/abc", nil, userToken); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUserListCachedAndInvalidatedOnRegister(t *testing.T) {
	env := newEnv(t)
	adminToken := env.registerAndLogin(t, "root", "Admin")

	if rec := env.do(t, http.MethodGet, "/api/users", nil, adminToken); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cached []Profile
	if ok, _ := env.cache.Get(context.Background(), cache.KeyAllUsers, &cached); !ok || len(cached) != 1 {
		t.Fatalf("expected list cached, got ok=%v %v", ok, cached)
	}

	env.registerAndLogin(t, "alice")
	if ok, _ := env.cache.Get(context.Background(), cache.KeyAllUsers, &cached); ok {
		t.Fatal("expected registration to invalidate the list cache")
	}

	rec := env.do(t, http.MethodGet, "/api/users", nil, adminToken)
	var list []Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("expected fresh list of 2, got %s", rec.Body.String())
	}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, any) (bool, error) { return false, errors.New("down") }
func (brokenCache) Set(context.Context, string, any, time.Duration) error {
	return errors.New("down")
}
func (brokenCache) Delete(context.Context, string) error { return errors.New("down") }

func TestCacheFaultsAreMisses(t *testing.T) {
	env := newEnv(t)
	token := env.registerAndLogin(t, "alice")
	env.handler = NewHandler(Deps{Auth: env.engine, Users: env.store, Cache: brokenCache{}, Logger: quietLogger()})

	if rec := env.do(t, http.MethodGet, "/api/users/1", nil, token); rec.Code != http.StatusOK {
		t.Fatalf("expected cache faults to fall through, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newEnv(t,
		HealthCheck{Name: "users", Check: alwaysHealthy},
		HealthCheck{Name: "cache", Check: func(context.Context) error { return errors.New("unreachable") }},
	)

	rec := env.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "Unhealthy" || len(resp.Checks) != 2 || resp.Checks[0].Status != "Healthy" {
		t.Fatalf("unexpected health %+v", resp)
	}

	healthy := newEnv(t)
	if rec := healthy.do(t, http.MethodGet, "/health", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func alwaysHealthy(context.Context) error { return nil }

func TestGateExemptsHealthAndMetrics(t *testing.T) {
	env := newEnv(t)
	gate, err := ratelimit.New(ratelimit.Config{Limit: 1, Window: time.Minute}, rate.NewTracker(), ratelimit.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	env.handler = gate.Middleware(env.handler)

	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodGet, "/health", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("health %d: expected 200, got %d", i, rec.Code)
		}
		if rec := env.do(t, http.MethodGet, "/metrics", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("metrics %d: expected 200, got %d", i, rec.Code)
		}
	}

	body := loginRequest{Username: "ghost", Password: "x"}
	if rec := env.do(t, http.MethodPost, "/api/auth/login", body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected first login to reach the handler, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/auth/login", body, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second login to be rate limited, got %d", rec.Code)
	}
}
