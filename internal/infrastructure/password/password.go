// Package password holds the credential-store side of passwords: bcrypt
// hashing and the acceptance policy for new passwords.
package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Policy lists the rules a new password must satisfy.
type Policy struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// DefaultPolicy mirrors the usual identity-framework defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:              6,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}
}

// Validate returns one reason per violated rule, or nil.
func (p Policy) Validate(plaintext string) []string {
	var reasons []string
	if len([]rune(plaintext)) < p.MinLength {
		reasons = append(reasons, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}

	var digit, lower, upper, other bool
	for _, r := range plaintext {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			other = true
		}
	}

	if p.RequireDigit && !digit {
		reasons = append(reasons, "password must contain a digit")
	}
	if p.RequireLowercase && !lower {
		reasons = append(reasons, "password must contain a lowercase letter")
	}
	if p.RequireUppercase && !upper {
		reasons = append(reasons, "password must contain an uppercase letter")
	}
	if p.RequireNonAlphanumeric && !other {
		reasons = append(reasons, "password must contain a non-alphanumeric character")
	}
	return reasons
}

// Hash returns the bcrypt hash of plaintext.
func Hash(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Compare reports whether plaintext matches hash. A mismatch is not an error.
func Compare(hash, plaintext string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}
