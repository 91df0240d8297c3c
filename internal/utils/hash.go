package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPasskey returns a bcrypt hash of the operator passkey.
func HashPasskey(passkey string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(passkey), bcrypt.DefaultCost)
	return string(bytes), err
}

// IsPasskeyHash reports whether value looks like a bcrypt hash rather than a
// plaintext passkey.
func IsPasskeyHash(value string) bool {
	if _, err := bcrypt.Cost([]byte(value)); err != nil {
		return false
	}
	return strings.HasPrefix(value, "$2")
}

// PasskeyMatches compares a bcrypt hash with a candidate passkey.
func PasskeyMatches(hash, passkey string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passkey)) == nil
}
