package handson

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/handson/internal/audit"
	"github.com/MrEthical07/handson/password"
)

// UserRecord is a stored account as returned by [UserStore].
type UserRecord struct {
	ID         int64
	Username   string
	Email      string
	Credential password.Credential
	Roles      []string
	CreatedAt  time.Time
	LastLogin  *time.Time
	IsActive   bool
}

// NewUser is the input for [UserStore.Insert].
type NewUser struct {
	Username   string
	Email      string
	Credential password.Credential
	Roles      []string
	CreatedAt  time.Time
	IsActive   bool
}

// UserStore is the persistence contract the Engine depends on.
//
// Lookups that match nothing must return an error wrapping [ErrUserNotFound].
// Insert returns the new positive id; a store that enforces uniqueness itself
// may return [ErrUsernameTaken] or [ErrEmailTaken].
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (UserRecord, error)
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	Insert(ctx context.Context, user NewUser) (int64, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) (bool, error)
}

// UserDirectory is the read side used by the user lookup endpoints. It is not
// needed by the Engine.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (UserRecord, error)
	List(ctx context.Context) ([]UserRecord, error)
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	// Roles is honoured only when Registration.AllowSelfAssignedRoles is set.
	Roles []string
}

// LoginRequest is the input for [Engine.Login].
type LoginRequest struct {
	Username string
	Password string
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	UserID    int64
	Token     string
	ExpiresAt time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs events through log/slog.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
