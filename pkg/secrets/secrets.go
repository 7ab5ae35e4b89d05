// Package secrets generates server-side random values and hashes the ones
// that must be stored but never read back.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/bcrypt"

	dErrors "warden/pkg/domain-errors"
)

// DefaultSize is the byte length of challenges and opaque tokens.
const DefaultSize = 32

// Generate returns DefaultSize random bytes as unpadded base64url.
func Generate() (string, error) {
	return GenerateN(DefaultSize)
}

// GenerateN returns n random bytes as unpadded base64url.
func GenerateN(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash bcrypts a secret at the given cost; cost 0 uses bcrypt.DefaultCost.
func Hash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "secret is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash secret")
	}
	return string(hashed), nil
}

// Matches reports whether secret matches hash. Malformed hashes never match.
func Matches(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
