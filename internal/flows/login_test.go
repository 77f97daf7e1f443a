package flows

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errNotReady   = errors.New("not ready")
	errInvalid    = errors.New("invalid credentials")
	errNotFound   = errors.New("not found")
	errTokenIssue = errors.New("token issue")
)

type loginHarness struct {
	user        LoginUserRecord
	findErr     error
	updateCalls int
	issueCalls  int
	dummyCalls  int
	issueErr    error
	metrics     map[int]int
	reasons     []string
}

func (h *loginHarness) deps() LoginDeps {
	h.metrics = map[int]int{}
	return LoginDeps{
		Now: func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
		FindByUsername: func(_ context.Context, name string) (LoginUserRecord, error) {
			if h.findErr != nil {
				return LoginUserRecord{}, h.findErr
			}
			if name != h.user.Username {
				return LoginUserRecord{}, errNotFound
			}
			return h.user, nil
		},
		UpdateLastLogin: func(context.Context, int64, time.Time) (bool, error) {
			h.updateCalls++
			return true, nil
		},
		Verify: func(password string, hash, _ []byte) bool {
			return bytes.Equal([]byte(password), hash)
		},
		VerifyDummy: func(string) { h.dummyCalls++ },
		Issue: func(LoginUserRecord) (string, time.Time, error) {
			h.issueCalls++
			if h.issueErr != nil {
				return "", time.Time{}, h.issueErr
			}
			return "tok", time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC), nil
		},
		MetricInc: func(id int) { h.metrics[id]++ },
		EmitAudit: func(_ context.Context, _ string, _ bool, _, _, reason string) {
			h.reasons = append(h.reasons, reason)
		},
		Metrics: LoginMetrics{LoginSuccess: 1, LoginFailure: 2, TokenIssueFailure: 3, LoginLatency: 4},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidCredentials: errInvalid,
			UserNotFound:       errNotFound,
			TokenIssue:         errTokenIssue,
		},
	}
}

func newLoginHarness() *loginHarness {
	return &loginHarness{user: LoginUserRecord{
		ID:       9,
		Username: "alice",
		Hash:     []byte("correct"),
		IsActive: true,
	}}
}

func TestRunLoginSuccess(t *testing.T) {
	h := newLoginHarness()
	res, err := RunLogin(context.Background(), "alice", "correct", h.deps())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "tok" || res.UserID != 9 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.updateCalls != 1 || h.issueCalls != 1 {
		t.Fatalf("expected one update and one issue, got %d/%d", h.updateCalls, h.issueCalls)
	}
	if h.metrics[1] != 1 {
		t.Fatal("expected success metric")
	}
}

func TestRunLoginRejections(t *testing.T) {
	cases := []struct {
		name     string
		username string
		password string
		inactive bool
		reason   string
	}{
		{"unknown user", "mallory", "correct", false, ReasonUserNotFound},
		{"inactive", "alice", "correct", true, ReasonAccountInactive},
		{"wrong password", "alice", "wrong", false, ReasonInvalidPassword},
	}
	for _, tc := range cases {
		h := newLoginHarness()
		h.user.IsActive = !tc.inactive
		res, err := RunLogin(context.Background(), tc.username, tc.password, h.deps())
		if !errors.Is(err, errInvalid) {
			t.Fatalf("%s: expected invalid credentials, got %v", tc.name, err)
		}
		if res.Token != "" {
			t.Fatalf("%s: expected no token", tc.name)
		}
		if h.updateCalls != 0 || h.issueCalls != 0 {
			t.Fatalf("%s: expected no last-login update or issuance", tc.name)
		}
		if len(h.reasons) != 1 || h.reasons[0] != tc.reason {
			t.Fatalf("%s: expected audit reason %q, got %v", tc.name, tc.reason, h.reasons)
		}
		if h.metrics[2] != 1 {
			t.Fatalf("%s: expected failure metric", tc.name)
		}
	}
}

func TestRunLoginUnknownUserBurnsVerification(t *testing.T) {
	h := newLoginHarness()
	_, _ = RunLogin(context.Background(), "ghost", "pw", h.deps())
	if h.dummyCalls != 1 {
		t.Fatalf("expected dummy verification, got %d", h.dummyCalls)
	}
}

func TestRunLoginStoreErrorIsNotRejection(t *testing.T) {
	h := newLoginHarness()
	h.findErr = errors.New("connection refused")
	_, err := RunLogin(context.Background(), "alice", "correct", h.deps())
	if err == nil || errors.Is(err, errInvalid) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if !errors.Is(err, h.findErr) {
		t.Fatal("expected store error to be wrapped")
	}
}

func TestRunLoginSigningFailure(t *testing.T) {
	h := newLoginHarness()
	cause := errors.New("sign failed")
	h.issueErr = cause
	var logged bool
	deps := h.deps()
	deps.Error = func(string, ...any) { logged = true }

	_, err := RunLogin(context.Background(), "alice", "correct", deps)
	if !errors.Is(err, errTokenIssue) || !errors.Is(err, cause) {
		t.Fatalf("expected token issue error wrapping cause, got %v", err)
	}
	if !logged {
		t.Fatal("expected signing failure to be logged at error level")
	}
	if h.metrics[3] != 1 {
		t.Fatal("expected token issue failure metric")
	}
}

func TestRunLoginMissingDeps(t *testing.T) {
	_, err := RunLogin(context.Background(), "a", "b", LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}})
	if !errors.Is(err, errNotReady) {
		t.Fatalf("expected engine not ready, got %v", err)
	}
}
