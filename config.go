package handson

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/handson/jwt"
	"github.com/MrEthical07/handson/password"
)

// Password algorithms accepted by PasswordConfig.Algorithm.
const (
	AlgorithmHMACSHA512 = "hmac-sha512"
	AlgorithmArgon2ID   = "argon2id"
)

// Config is the engine configuration. Build it from [DefaultConfig] and
// override what you need.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token issuance. Secret, Issuer and Audience are
// required; a missing one fails Build with a *jwt.ConfigurationError.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects and tunes the credential hasher.
type PasswordConfig struct {
	Algorithm  string // "hmac-sha512" (default) or "argon2id"
	SaltLength int    // hmac-sha512 salt/key bytes
	Argon2     password.Argon2Config
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls account creation.
type RegistrationConfig struct {
	// DefaultRoles are assigned to every new account.
	DefaultRoles []string
	// AllowSelfAssignedRoles lets the request supply its own roles. Off by
	// default: a client could otherwise grant itself Admin.
	AllowSelfAssignedRoles bool
}

// AuditConfig controls audit dispatch buffering.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. JWT settings have no
// defaults and must be supplied.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Algorithm:  AlgorithmHMACSHA512,
			SaltLength: password.DefaultSaltLength,
			Argon2:     password.DefaultArgon2Config(),
		},
		Registration: RegistrationConfig{
			DefaultRoles: []string{"User"},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate checks the configuration for values Build cannot work with. JWT
// settings are validated by jwt.NewManager during Build.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Password.Algorithm)) {
	case "", AlgorithmHMACSHA512, AlgorithmArgon2ID:
	default:
		return fmt.Errorf("unsupported password algorithm %q", c.Password.Algorithm)
	}
	if c.Password.SaltLength < 0 {
		return errors.New("password salt length must be >= 0")
	}
	for _, r := range c.Registration.DefaultRoles {
		if strings.TrimSpace(r) == "" {
			return errors.New("registration default roles must not contain blank names")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must be >= 0")
	}
	return nil
}

func (c JWTConfig) managerConfig() jwt.Config {
	return jwt.Config{
		Secret:   cloneBytes(c.Secret),
		Issuer:   c.Issuer,
		Audience: c.Audience,
		Leeway:   c.Leeway,
	}
}

func cloneConfig(in Config) Config {
	out := in
	out.JWT.Secret = cloneBytes(in.JWT.Secret)
	out.Registration.DefaultRoles = append([]string(nil), in.Registration.DefaultRoles...)
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
