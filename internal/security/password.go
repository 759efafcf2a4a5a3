package security

import (
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashPassword produces a salted bcrypt digest of the plaintext.
func HashPassword(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword reports whether plaintext matches the stored digest. bcrypt's
// comparison is constant-time with respect to the digest contents.
func VerifyPassword(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

var (
	passwordLetter  = regexp.MustCompile(`[A-Za-z]`)
	passwordDigit   = regexp.MustCompile(`\d`)
	passwordSpecial = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// ValidPassword enforces the signup password policy: 12-64 characters with at
// least one letter, one digit and one special character.
func ValidPassword(plaintext string) bool {
	if len(plaintext) < 12 || len(plaintext) > 64 {
		return false
	}
	return passwordLetter.MatchString(plaintext) &&
		passwordDigit.MatchString(plaintext) &&
		passwordSpecial.MatchString(plaintext)
}

// ValidEmail applies the same structural check as the original signup flow:
// an @ must be present, the local part is capped at 64 bytes and the domain
// at 255.
func ValidEmail(email string) bool {
	at := -1
	for i, c := range email {
		if c == '@' {
			at = i
			break
		}
	}
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return at <= 64 && len(email)-at-1 <= 255
}
