package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenLifetime is the fixed validity window of every issued token.
const TokenLifetime = 7 * 24 * time.Hour

// MinSecretLength is the shortest accepted HS256 secret, in bytes.
const MinSecretLength = 32

// Config holds the issuer settings. All three fields are required.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	// Leeway tolerates clock skew when parsing. Zero disables it.
	Leeway time.Duration
	// Clock overrides time.Now for issuance and validation.
	Clock func() time.Time
}

// Identity is the subject a token is issued for.
type Identity struct {
	ID       int64
	Username string
	Email    string
	Roles    []string
}

// Claims is the token payload.
type Claims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether role is among the token roles.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ConfigurationError reports a missing or unusable issuer setting.
// It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("jwt configuration: %s %s", e.Field, e.Reason)
}

// SigningError wraps a per-call failure to sign a token.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return "jwt signing failed: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error { return e.Err }

// Manager issues and parses HS256 tokens with a single shared secret.
//
// Manager is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
	sign   func(*jwt.Token, []byte) (string, error)
}

// NewManager validates cfg and returns a Manager. A missing secret, issuer or
// audience yields a *ConfigurationError.
func NewManager(cfg Config) (*Manager, error) {
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	switch {
	case len(cfg.Secret) == 0:
		return nil, &ConfigurationError{Field: "secret", Reason: "is not configured"}
	case len(cfg.Secret) < MinSecretLength:
		return nil, &ConfigurationError{Field: "secret", Reason: fmt.Sprintf("must be at least %d bytes", MinSecretLength)}
	case cfg.Issuer == "":
		return nil, &ConfigurationError{Field: "issuer", Reason: "is not configured"}
	case cfg.Audience == "":
		return nil, &ConfigurationError{Field: "audience", Reason: "is not configured"}
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, &ConfigurationError{Field: "leeway", Reason: "must be between 0 and 2m"}
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{
		config: cfg,
		now:    now,
		sign: func(t *jwt.Token, key []byte) (string, error) {
			return t.SignedString(key)
		},
	}, nil
}

// Issue builds and signs a token for id, expiring TokenLifetime from now.
// Signing failures are returned as *SigningError.
func (m *Manager) Issue(id Identity) (string, error) {
	token, _, err := m.IssueWithExpiry(id)
	return token, err
}

// IssueWithExpiry is Issue that also reports the expiry instant.
func (m *Manager) IssueWithExpiry(id Identity) (string, time.Time, error) {
	now := m.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(TokenLifetime)

	claims := Claims{
		Name:  id.Username,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", id.ID),
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if len(id.Roles) > 0 {
		claims.Roles = append([]string(nil), id.Roles...)
	}

	signed, err := m.sign(jwt.NewWithClaims(jwt.SigningMethodHS256, claims), m.config.Secret)
	if err != nil {
		return "", time.Time{}, &SigningError{Err: err}
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, issuer, audience and expiry and returns the claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject missing")
	}
	return claims, nil
}
