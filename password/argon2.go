package password

import (
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minKeyLength   uint32 = 16
)

// Argon2Config defines the Argon2id cost parameters. Parameters are not
// stored with the credential, so changing them invalidates existing hashes.
type Argon2Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	Rand        io.Reader
}

// DefaultArgon2Config returns the parameters used when argon2id is selected
// without explicit tuning.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes passwords with Argon2id. The salt is the random KDF salt.
type Argon2 struct {
	config Argon2Config
	rand   io.Reader
}

// NewArgon2 validates cfg and returns a ready hasher.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := validateArgon2Config(cfg); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg, rand: randomReader(cfg.Rand)}, nil
}

// Hash derives a fresh credential for password.
func (a *Argon2) Hash(password string) (Credential, error) {
	salt, err := newSalt(a.rand, int(a.config.SaltLength))
	if err != nil {
		return Credential{}, err
	}
	return Credential{Hash: a.derive(password, salt), Salt: salt}, nil
}

// Verify re-derives the key with the stored salt and compares in constant time.
func (a *Argon2) Verify(password string, stored Credential) bool {
	if len(stored.Salt) == 0 || len(stored.Hash) != int(a.config.KeyLength) {
		return false
	}
	computed := a.derive(password, stored.Salt)
	return subtle.ConstantTimeCompare(computed, stored.Hash) == 1
}

func (a *Argon2) derive(password string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)
}

func validateArgon2Config(cfg Argon2Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.Join(ErrInvalidConfig, errors.New("argon2 memory must be >= 8192 KB"))
	}
	if cfg.Time < minTimeCost {
		return errors.Join(ErrInvalidConfig, errors.New("argon2 time must be >= 1"))
	}
	if cfg.Parallelism < minParallelism {
		return errors.Join(ErrInvalidConfig, errors.New("argon2 parallelism must be >= 1"))
	}
	if cfg.SaltLength < minSaltLength {
		return errors.Join(ErrInvalidConfig, errors.New("argon2 salt length must be >= 16"))
	}
	if cfg.KeyLength < minKeyLength {
		return errors.Join(ErrInvalidConfig, errors.New("argon2 key length must be >= 16"))
	}
	return nil
}
