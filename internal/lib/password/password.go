package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// AlgorithmDescriptor identifies the derivation parameters stored alongside
// each hash, so existing credentials keep verifying after a future migration
// to different parameters.
const AlgorithmDescriptor = "PBKDF2-SHA256-100000"

const (
	saltSize   = 16
	hashSize   = 32
	iterations = 100_000
)

var (
	ErrEmptyPassword        = errors.New("password is empty")
	ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")
)

// Hash derives a PBKDF2-HMAC-SHA256 hash of the password with a fresh random
// salt. Length policy lives in the caller; only emptiness is rejected here.
func Hash(pass string) (hash, salt []byte, algorithm string, err error) {
	const op = "password.Hash"

	if pass == "" {
		return nil, nil, "", fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, "", fmt.Errorf("%s: %w", op, err)
	}

	hash = pbkdf2.Key([]byte(pass), salt, iterations, hashSize, sha256.New)

	return hash, salt, AlgorithmDescriptor, nil
}

// Verify recomputes the derivation with the stored salt and compares in
// constant time. An unknown algorithm descriptor is a hard failure, not a
// silent false: the caller must distinguish "wrong password" from "cannot
// evaluate this hash".
func Verify(pass string, expectedHash, salt []byte, algorithm string) (bool, error) {
	const op = "password.Verify"

	if pass == "" {
		return false, nil
	}

	if !strings.EqualFold(algorithm, AlgorithmDescriptor) {
		return false, fmt.Errorf("%s: %w: %q", op, ErrUnsupportedAlgorithm, algorithm)
	}

	computed := pbkdf2.Key([]byte(pass), salt, iterations, hashSize, sha256.New)

	return subtle.ConstantTimeCompare(computed, expectedHash) == 1, nil
}
