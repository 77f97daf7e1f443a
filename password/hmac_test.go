package password

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestHMACHashProducesFullWidthCredential(t *testing.T) {
	hasher, err := NewHMAC(HMACConfig{})
	if err != nil {
		t.Fatalf("NewHMAC error: %v", err)
	}

	cred, err := hasher.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if len(cred.Hash) != sha512.Size {
		t.Fatalf("expected %d-byte hash, got %d", sha512.Size, len(cred.Hash))
	}
	if len(cred.Salt) != DefaultSaltLength {
		t.Fatalf("expected %d-byte salt, got %d", DefaultSaltLength, len(cred.Salt))
	}
}

func TestHMACSaltsDifferAndBothVerify(t *testing.T) {
	hasher, err := NewHMAC(HMACConfig{})
	if err != nil {
		t.Fatalf("NewHMAC error: %v", err)
	}

	a, err := hasher.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := hasher.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if bytes.Equal(a.Salt, b.Salt) {
		t.Fatal("expected distinct salts")
	}
	if bytes.Equal(a.Hash, b.Hash) {
		t.Fatal("expected distinct hashes")
	}
	if !hasher.Verify("hunter2", a) || !hasher.Verify("hunter2", b) {
		t.Fatal("expected both credentials to verify")
	}
}

func TestHMACVerifyWrongPassword(t *testing.T) {
	hasher, err := NewHMAC(HMACConfig{})
	if err != nil {
		t.Fatalf("NewHMAC error: %v", err)
	}
	cred, err := hasher.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hasher.Verify("hunter3", cred) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestHMACEmptyPasswordIsHashable(t *testing.T) {
	hasher, err := NewHMAC(HMACConfig{SaltLength: 16})
	if err != nil {
		t.Fatalf("NewHMAC error: %v", err)
	}
	cred, err := hasher.Hash("")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !hasher.Verify("", cred) {
		t.Fatal("expected empty password to verify against its own hash")
	}
	if hasher.Verify(" ", cred) {
		t.Fatal("expected non-empty password to fail against empty-password hash")
	}
}

func TestHMACVerifyNeverPanicsOnMalformedCredential(t *testing.T) {
	hasher, err := NewHMAC(HMACConfig{})
	if err != nil {
		t.Fatalf("NewHMAC error: %v", err)
	}
	for _, cred := range []Credential{
		{},
		{Hash: []byte{1, 2, 3}},
		{Salt: []byte{1, 2, 3}},
		{Hash: make([]byte, sha512.Size)},
		{Hash: make([]byte, 10), Salt: make([]byte, 10)},
	} {
		if hasher.Verify("anything", cred) {
			t.Fatalf("expected malformed credential %+v to fail", cred)
		}
	}
}

func TestHMACRandomSourceFailure(t *testing.T) {
	hasher, err := NewHMAC(HMACConfig{Rand: failingReader{}})
	if err != nil {
		t.Fatalf("NewHMAC error: %v", err)
	}
	if _, err := hasher.Hash("pw"); !errors.Is(err, ErrRandomSource) {
		t.Fatalf("expected ErrRandomSource, got %v", err)
	}
}

func TestNewHMACRejectsShortSalt(t *testing.T) {
	if _, err := NewHMAC(HMACConfig{SaltLength: 8}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
