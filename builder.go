package handson

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/handson/internal/audit"
	"github.com/MrEthical07/handson/jwt"
	"github.com/MrEthical07/handson/password"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config

	users     UserStore
	auditSink AuditSink
	hasher    password.Hasher
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore sets the required persistence backend.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for the engine and its token issuer. Intended
// for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. A missing JWT
// setting fails with a *jwt.ConfigurationError.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, ErrUserStoreRequired
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jwtCfg := cfg.JWT.managerConfig()
	jwtCfg.Clock = now
	issuer, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		hasher, err = newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
	}

	dummy, err := dummyCredential(hasher)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		users:   b.users,
		hasher:  hasher,
		dummy:   dummy,
		issuer:  issuer,
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.flows.Login = engine.loginDeps()
	engine.flows.Register = engine.registerDeps()

	b.built = true
	return engine, nil
}

func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Algorithm)) {
	case AlgorithmArgon2ID:
		return password.NewArgon2(cfg.Argon2)
	default:
		return password.NewHMAC(password.HMACConfig{SaltLength: cfg.SaltLength})
	}
}

// dummyCredential hashes a random throwaway secret so unknown-user logins
// can spend one real verification.
func dummyCredential(h password.Hasher) (password.Credential, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return password.Credential{}, err
	}
	return h.Hash(string(buf))
}
