package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultSaltLength matches the block size of HMAC-SHA-512 so the salt is
	// used as a full-width key.
	DefaultSaltLength = 128
	minSaltLength     = 16
)

var (
	// ErrRandomSource is returned when the system random source fails while
	// generating a salt.
	ErrRandomSource = errors.New("password: random source failure")
	// ErrInvalidConfig is returned by constructors for unusable parameters.
	ErrInvalidConfig = errors.New("password: invalid configuration")
)

// Credential is the stored form of a password: the keyed hash and the random
// per-credential salt that keyed it.
type Credential struct {
	Hash []byte
	Salt []byte
}

// Hasher derives and verifies credentials.
//
// Hash must draw a fresh random salt on every call. Verify must compare in
// constant time and must not panic for any input, including empty or
// malformed credentials.
type Hasher interface {
	Hash(password string) (Credential, error)
	Verify(password string, stored Credential) bool
}

func newSalt(r io.Reader, n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return salt, nil
}

func randomReader(r io.Reader) io.Reader {
	if r == nil {
		return rand.Reader
	}
	return r
}
