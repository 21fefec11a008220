// Package auth provides authentication primitives for the Feedbase backend:
// API key generation and keyed hashing, bearer-token extraction, session JWT
// creation/verification, and the role/scope model used for authorization.
// See internal/middleware/auth.go for the request-time logic that uses these
// primitives.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// APIKeySecretBytes is the length of the random part of an API key in bytes.
	APIKeySecretBytes = 32

	// DisplayPrefixLength is the number of leading characters stored in
	// plaintext for display in key listings.
	DisplayPrefixLength = 12
)

// GenerateAPIKey creates a new random API key of the form
//
//	<prefix>_<env>_<base64url random>
//
// e.g. "fdb_live_hJx3...". The prefix tag and environment marker exist purely
// for operator debugging: a leaked test key is recognizable at a glance.
// Returns the full key (shown to the caller exactly once) and the display
// prefix (stored alongside the hash).
func GenerateAPIKey(prefix, env string) (key string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeySecretBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := fmt.Sprintf("%s_%s_%s", prefix, env, randomPart)

	displayPrefix = fullKey
	if len(fullKey) > DisplayPrefixLength {
		displayPrefix = fullKey[:DisplayPrefixLength]
	}

	return fullKey, displayPrefix, nil
}

// KeyHasher computes the stored digest of an API key. The digest is an
// HMAC-SHA256 over the full key string, keyed with a server-side secret, so a
// leaked database dump alone is not enough to forge valid credentials.
// Validation is an exact-match lookup on the digest, O(1) and safe under
// concurrent reads.
type KeyHasher struct {
	secret []byte
}

// NewKeyHasher creates a KeyHasher from the configured server-side secret.
func NewKeyHasher(secret string) (*KeyHasher, error) {
	if len(secret) < 32 {
		return nil, errors.New("api key hashing secret must be at least 32 characters")
	}
	return &KeyHasher{secret: []byte(secret)}, nil
}

// Hash returns the hex-encoded HMAC-SHA256 digest of the full key string.
func (h *KeyHasher) Hash(key string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidKeyFormat reports whether a presented key matches the expected
// <prefix>_<env>_<secret> shape. Keys that fail this check are rejected with
// 401 before any hash computation or database lookup.
func ValidKeyFormat(key, prefix string) bool {
	if !strings.HasPrefix(key, prefix+"_") {
		return false
	}
	parts := strings.SplitN(key, "_", 3)
	return len(parts) == 3 && parts[1] != "" && parts[2] != ""
}

// ExtractBearerToken extracts the credential from an Authorization header.
// Expected format: "Bearer fdb_live_abc123...".
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("credential is empty after Bearer prefix")
	}

	return token, nil
}
