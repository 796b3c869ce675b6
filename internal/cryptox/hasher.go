// Package cryptox implements one-way password hashing.
//
// Encoded hashes have the form
//
//	<hex(derived key)>.<hex(salt)>
//
// where the key is derived with Argon2id from the plaintext and a fresh
// random salt.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	separator     = "."
	minSaltLength = 16
)

// ErrMalformedHash reports a stored hash that cannot be parsed. It signals
// corrupt data, not a wrong password.
var ErrMalformedHash = errors.New("malformed password hash")

// HasherParams are the Argon2id cost parameters.
type HasherParams struct {
	Time        uint32
	MemoryKB    uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams: one pass over 64 MiB with four lanes.
var DefaultParams = HasherParams{
	Time:        1,
	MemoryKB:    64 * 1024,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes and verifies passwords. The zero value is not usable; build
// one with NewHasher.
type Hasher struct {
	params HasherParams
}

func NewHasher(p HasherParams) (*Hasher, error) {
	if p.Time < 1 || p.MemoryKB < 1 || p.Parallelism < 1 {
		return nil, errors.New("argon2 cost parameters must be positive")
	}
	if p.SaltLength < minSaltLength {
		return nil, fmt.Errorf("salt length must be >= %d", minSaltLength)
	}
	if p.KeyLength < 16 {
		return nil, errors.New("key length must be >= 16")
	}
	return &Hasher{params: p}, nil
}

// Hash returns the encoded hash of plaintext. Every call draws a new salt, so
// hashing the same input twice yields different strings.
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := h.derive(plaintext, salt)
	return hex.EncodeToString(key) + separator + hex.EncodeToString(salt), nil
}

// Verify reports whether plaintext matches encoded. The comparison runs in
// constant time. A malformed encoded value yields ErrMalformedHash.
func (h *Hasher) Verify(plaintext, encoded string) (bool, error) {
	key, salt, err := h.parse(encoded)
	if err != nil {
		return false, err
	}

	candidate := h.derive(plaintext, salt)
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

func (h *Hasher) derive(plaintext string, salt []byte) []byte {
	pw := []byte(plaintext)
	defer common.WipeByteArray(pw)
	return argon2.IDKey(pw, salt, h.params.Time, h.params.MemoryKB, h.params.Parallelism, h.params.KeyLength)
}

func (h *Hasher) parse(encoded string) (key, salt []byte, err error) {
	keyHex, saltHex, ok := strings.Cut(encoded, separator)
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing separator", ErrMalformedHash)
	}

	key, err = hex.DecodeString(keyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	if len(key) != int(h.params.KeyLength) {
		return nil, nil, fmt.Errorf("%w: key length %d", ErrMalformedHash, len(key))
	}

	salt, err = hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if len(salt) < minSaltLength {
		return nil, nil, fmt.Errorf("%w: salt length %d", ErrMalformedHash, len(salt))
	}

	return key, salt, nil
}
