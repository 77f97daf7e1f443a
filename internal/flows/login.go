package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Rejection reasons recorded in audit events and warn logs. They never reach
// the client.
const (
	ReasonUserNotFound    = "user_not_found"
	ReasonAccountInactive = "account_inactive"
	ReasonInvalidPassword = "invalid_password"
	ReasonStoreError      = "store_error"
	ReasonTokenIssue      = "token_issue_failed"
)

// LoginUserRecord is the flow-local view of a stored user.
type LoginUserRecord struct {
	ID       int64
	Username string
	Email    string
	Hash     []byte
	Salt     []byte
	Roles    []string
	IsActive bool
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	UserID    int64
	Token     string
	ExpiresAt time.Time
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess      int
	LoginFailure      int
	TokenIssueFailure int
	LoginLatency      int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	UserNotFound       error
	TokenIssue         error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now func() time.Time

	FindByUsername  func(context.Context, string) (LoginUserRecord, error)
	UpdateLastLogin func(context.Context, int64, time.Time) (bool, error)
	Verify          func(password string, hash, salt []byte) bool
	// VerifyDummy burns one verification when the user does not exist so the
	// not-found path costs about the same as a wrong password.
	VerifyDummy func(password string)
	Issue       func(LoginUserRecord) (string, time.Time, error)

	MetricInc func(int)
	Observe   func(int, time.Duration)
	EmitAudit func(ctx context.Context, event string, success bool, userID, username, reason string)
	Warn      func(string, ...any)
	Error     func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin looks the user up, checks it is active, verifies the password and
// issues a token. Every credential rejection surfaces as
// Errors.InvalidCredentials; store and signing faults surface as wrapped
// errors so callers can tell them apart.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) (LoginResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Observe == nil {
		deps.Observe = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.Error == nil {
		deps.Error = func(string, ...any) {}
	}
	if deps.VerifyDummy == nil {
		deps.VerifyDummy = func(string) {}
	}
	if deps.FindByUsername == nil ||
		deps.UpdateLastLogin == nil ||
		deps.Verify == nil ||
		deps.Issue == nil {
		return LoginResult{}, deps.Errors.EngineNotReady
	}

	started := deps.Now()
	defer func() { deps.Observe(deps.Metrics.LoginLatency, deps.Now().Sub(started)) }()

	reject := func(userID, reason string) (LoginResult, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, username, reason)
		deps.Warn("login rejected", "username", username, "reason", reason)
		return LoginResult{}, deps.Errors.InvalidCredentials
	}

	user, err := deps.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			deps.VerifyDummy(password)
			return reject("", ReasonUserNotFound)
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", username, ReasonStoreError)
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	userID := strconv.FormatInt(user.ID, 10)

	if !user.IsActive {
		return reject(userID, ReasonAccountInactive)
	}
	if !deps.Verify(password, user.Hash, user.Salt) {
		return reject(userID, ReasonInvalidPassword)
	}

	if _, err := deps.UpdateLastLogin(ctx, user.ID, deps.Now().UTC()); err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, username, ReasonStoreError)
		return LoginResult{}, fmt.Errorf("record last login: %w", err)
	}

	token, expiresAt, err := deps.Issue(user)
	if err != nil {
		deps.MetricInc(deps.Metrics.TokenIssueFailure)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, username, ReasonTokenIssue)
		deps.Error("token issuance failed", "user_id", user.ID, "error", err)
		return LoginResult{}, fmt.Errorf("%w: %w", deps.Errors.TokenIssue, err)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, userID, username, "")
	return LoginResult{UserID: user.ID, Token: token, ExpiresAt: expiresAt}, nil
}
