package password

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"io"
)

// HMACConfig tunes the keyed HMAC-SHA-512 hasher.
type HMACConfig struct {
	// SaltLength is the random key size in bytes. Zero selects DefaultSaltLength.
	SaltLength int
	// Rand overrides the random source. Nil uses crypto/rand.
	Rand io.Reader
}

// HMAC hashes passwords with HMAC-SHA-512, keyed by a random salt.
type HMAC struct {
	saltLength int
	rand       io.Reader
}

// NewHMAC validates cfg and returns a ready hasher.
func NewHMAC(cfg HMACConfig) (*HMAC, error) {
	if cfg.SaltLength == 0 {
		cfg.SaltLength = DefaultSaltLength
	}
	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("%w: salt length must be >= %d bytes", ErrInvalidConfig, minSaltLength)
	}
	return &HMAC{saltLength: cfg.SaltLength, rand: randomReader(cfg.Rand)}, nil
}

// Hash returns a fresh credential for password. Empty passwords are hashed
// like any other string; policy belongs to the caller.
func (h *HMAC) Hash(password string) (Credential, error) {
	salt, err := newSalt(h.rand, h.saltLength)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Hash: hmacSum(salt, password), Salt: salt}, nil
}

// Verify recomputes the keyed hash with the stored salt and compares it to the
// stored hash in constant time.
func (h *HMAC) Verify(password string, stored Credential) bool {
	if len(stored.Salt) == 0 || len(stored.Hash) != sha512.Size {
		return false
	}
	computed := hmacSum(stored.Salt, password)
	return subtle.ConstantTimeCompare(computed, stored.Hash) == 1
}

func hmacSum(key []byte, password string) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(password))
	return mac.Sum(nil)
}
