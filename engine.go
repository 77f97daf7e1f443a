package handson

import (
	"context"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/handson/internal/audit"
	"github.com/MrEthical07/handson/internal/flows"
	"github.com/MrEthical07/handson/jwt"
	"github.com/MrEthical07/handson/password"
)

// Engine is the authentication pipeline. It is immutable after Build and safe
// for concurrent use; the only shared state it touches is its metrics and
// audit queue.
type Engine struct {
	config  Config
	users   UserStore
	hasher  password.Hasher
	dummy   password.Credential
	issuer  *jwt.Manager
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
	flows   flows.Deps
}

// Login verifies username and password and issues a bearer token.
//
// Unknown users, inactive accounts and wrong passwords all return
// [ErrInvalidCredentials]. A signing failure returns an error wrapping both
// [ErrTokenIssue] and the *jwt.SigningError. Store failures are returned
// wrapped and are not rejections.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	res, err := flows.RunLogin(ctx, req.Username, req.Password, e.flows.Login)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{UserID: res.UserID, Token: res.Token, ExpiresAt: res.ExpiresAt}, nil
}

// Register creates an active account and returns its id. See
// [IsRegistrationRejection] for the expected failure outcomes.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	return flows.RunRegister(ctx, flows.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Roles:           req.Roles,
	}, e.flows.Register)
}

// ParseToken validates a bearer token issued by this engine.
func (e *Engine) ParseToken(token string) (*jwt.Claims, error) {
	if e == nil || e.issuer == nil {
		return nil, ErrEngineNotReady
	}
	return e.issuer.Parse(token)
}

// Metrics returns the engine's counters so other components (the admission
// gate) can record into the same set.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a copy of the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) metricInc(id int) {
	e.metrics.Inc(MetricID(id))
}

func (e *Engine) metricObserve(id int, d time.Duration) {
	e.metrics.Observe(MetricID(id), d)
}

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		Now: e.now,
		FindByUsername: func(ctx context.Context, username string) (flows.LoginUserRecord, error) {
			u, err := e.users.FindByUsername(ctx, username)
			if err != nil {
				return flows.LoginUserRecord{}, err
			}
			return flows.LoginUserRecord{
				ID:       u.ID,
				Username: u.Username,
				Email:    u.Email,
				Hash:     u.Credential.Hash,
				Salt:     u.Credential.Salt,
				Roles:    u.Roles,
				IsActive: u.IsActive,
			}, nil
		},
		UpdateLastLogin: e.users.UpdateLastLogin,
		Verify: func(pw string, hash, salt []byte) bool {
			return e.hasher.Verify(pw, password.Credential{Hash: hash, Salt: salt})
		},
		VerifyDummy: func(pw string) {
			_ = e.hasher.Verify(pw, e.dummy)
		},
		Issue: func(u flows.LoginUserRecord) (string, time.Time, error) {
			return e.issuer.IssueWithExpiry(jwt.Identity{
				ID:       u.ID,
				Username: u.Username,
				Email:    u.Email,
				Roles:    u.Roles,
			})
		},
		MetricInc: e.metricInc,
		Observe:   e.metricObserve,
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
		Error:     e.logger.Error,
		Metrics: flows.LoginMetrics{
			LoginSuccess:      int(MetricLoginSuccess),
			LoginFailure:      int(MetricLoginFailure),
			TokenIssueFailure: int(MetricTokenIssueFailure),
			LoginLatency:      int(MetricLoginLatency),
		},
		Events: flows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			UserNotFound:       ErrUserNotFound,
			TokenIssue:         ErrTokenIssue,
		},
	}
}

func (e *Engine) registerDeps() flows.RegisterDeps {
	return flows.RegisterDeps{
		Now: e.now,
		FindByUsername: func(ctx context.Context, username string) error {
			_, err := e.users.FindByUsername(ctx, username)
			return err
		},
		FindByEmail: func(ctx context.Context, email string) error {
			_, err := e.users.FindByEmail(ctx, email)
			return err
		},
		Insert: func(ctx context.Context, u flows.NewUserRecord) (int64, error) {
			return e.users.Insert(ctx, NewUser{
				Username:   u.Username,
				Email:      u.Email,
				Credential: password.Credential{Hash: u.Hash, Salt: u.Salt},
				Roles:      u.Roles,
				CreatedAt:  u.CreatedAt,
				IsActive:   u.IsActive,
			})
		},
		Hash: func(pw string) ([]byte, []byte, error) {
			c, err := e.hasher.Hash(pw)
			return c.Hash, c.Salt, err
		},
		ResolveRoles: e.resolveRoles,
		MetricInc:    e.metricInc,
		EmitAudit:    e.emitAudit,
		Warn:         e.logger.Warn,
		Metrics: flows.RegisterMetrics{
			RegisterSuccess:   int(MetricRegisterSuccess),
			RegisterFailure:   int(MetricRegisterFailure),
			RegisterDuplicate: int(MetricRegisterDuplicate),
		},
		Events: flows.RegisterEvents{
			RegisterSuccess: auditEventRegisterSuccess,
			RegisterFailure: auditEventRegisterFailure,
		},
		Errors: flows.RegisterErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidRequest:     ErrInvalidRegistration,
			PasswordMismatch:   ErrPasswordMismatch,
			UsernameTaken:      ErrUsernameTaken,
			EmailTaken:         ErrEmailTaken,
			RegistrationFailed: ErrRegistrationFailed,
			UserNotFound:       ErrUserNotFound,
		},
	}
}

func (e *Engine) resolveRoles(requested []string) []string {
	if e.config.Registration.AllowSelfAssignedRoles && len(requested) > 0 {
		return append([]string(nil), requested...)
	}
	return append([]string(nil), e.config.Registration.DefaultRoles...)
}
