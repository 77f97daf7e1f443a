package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ReasonPasswordMismatch = "password_mismatch"
	ReasonUsernameTaken    = "username_taken"
	ReasonEmailTaken       = "email_taken"
	ReasonMissingField     = "missing_field"
	ReasonInsertFailed     = "insert_failed"
)

// RegisterInput is the flow-local registration request.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Roles           []string
}

// NewUserRecord is what the flow asks the store to persist.
type NewUserRecord struct {
	Username  string
	Email     string
	Hash      []byte
	Salt      []byte
	Roles     []string
	CreatedAt time.Time
	IsActive  bool
}

// RegisterMetrics carries metric IDs needed by the registration flow.
type RegisterMetrics struct {
	RegisterSuccess   int
	RegisterFailure   int
	RegisterDuplicate int
}

// RegisterEvents carries audit event names used by the registration flow.
type RegisterEvents struct {
	RegisterSuccess string
	RegisterFailure string
}

// RegisterErrors carries host-level sentinel errors used by the registration flow.
type RegisterErrors struct {
	EngineNotReady     error
	InvalidRequest     error
	PasswordMismatch   error
	UsernameTaken      error
	EmailTaken         error
	RegistrationFailed error
	UserNotFound       error
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Now func() time.Time

	FindByUsername func(context.Context, string) error
	FindByEmail    func(context.Context, string) error
	Insert         func(context.Context, NewUserRecord) (int64, error)
	Hash           func(string) (hash, salt []byte, err error)
	ResolveRoles   func(requested []string) []string

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, username, reason string)
	Warn      func(string, ...any)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister validates the request and creates an active account.
//
// Checks run in order: confirmation match, required fields, username
// uniqueness, email uniqueness. The first failing check wins and nothing after
// it runs, so a mismatched confirmation never touches the store or the hasher.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (int64, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ResolveRoles == nil {
		deps.ResolveRoles = func(r []string) []string { return r }
	}
	if deps.FindByUsername == nil ||
		deps.FindByEmail == nil ||
		deps.Insert == nil ||
		deps.Hash == nil {
		return 0, deps.Errors.EngineNotReady
	}

	reject := func(reason string, err error) (int64, error) {
		deps.MetricInc(deps.Metrics.RegisterFailure)
		if errors.Is(err, deps.Errors.UsernameTaken) || errors.Is(err, deps.Errors.EmailTaken) {
			deps.MetricInc(deps.Metrics.RegisterDuplicate)
		}
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, "", in.Username, reason)
		deps.Warn("registration rejected", "username", in.Username, "reason", reason)
		return 0, err
	}

	if in.Password != in.ConfirmPassword {
		return reject(ReasonPasswordMismatch, deps.Errors.PasswordMismatch)
	}
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return reject(ReasonMissingField, deps.Errors.InvalidRequest)
	}

	if taken, err := exists(ctx, deps.FindByUsername, in.Username, deps.Errors.UserNotFound); err != nil {
		return 0, fmt.Errorf("lookup username: %w", err)
	} else if taken {
		return reject(ReasonUsernameTaken, deps.Errors.UsernameTaken)
	}
	if taken, err := exists(ctx, deps.FindByEmail, in.Email, deps.Errors.UserNotFound); err != nil {
		return 0, fmt.Errorf("lookup email: %w", err)
	} else if taken {
		return reject(ReasonEmailTaken, deps.Errors.EmailTaken)
	}

	hash, salt, err := deps.Hash(in.Password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := deps.Insert(ctx, NewUserRecord{
		Username:  in.Username,
		Email:     in.Email,
		Hash:      hash,
		Salt:      salt,
		Roles:     deps.ResolveRoles(in.Roles),
		CreatedAt: deps.Now().UTC(),
		IsActive:  true,
	})
	switch {
	case errors.Is(err, deps.Errors.UsernameTaken):
		return reject(ReasonUsernameTaken, err)
	case errors.Is(err, deps.Errors.EmailTaken):
		return reject(ReasonEmailTaken, err)
	case err != nil:
		return 0, fmt.Errorf("insert user: %w", err)
	case id <= 0:
		return reject(ReasonInsertFailed, deps.Errors.RegistrationFailed)
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.RegisterSuccess, true, strconv.FormatInt(id, 10), in.Username, "")
	return id, nil
}

func exists(ctx context.Context, find func(context.Context, string) error, value string, notFound error) (bool, error) {
	err := find(ctx, value)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, notFound):
		return false, nil
	default:
		return false, err
	}
}
