package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 16 // 128 bits of entropy, hex-encoded to 32 characters

// NewSessionID mints an unguessable opaque session identifier.
func NewSessionID() (string, error) {
	return randomHex("session id")
}

// NewCSRFToken mints the per-session anti-forgery token.
func NewCSRFToken() (string, error) {
	return randomHex("csrf token")
}

func randomHex(what string) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate %s: %w", what, err)
	}
	return hex.EncodeToString(b), nil
}

// TokensEqual compares two presented tokens without leaking a timing signal
// about the position of the first differing byte.
func TokensEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
