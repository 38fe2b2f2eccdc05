// Package auth holds the credential primitives used by the account store:
// bcrypt password hashing and the 6-digit verification code mailed at
// registration.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// CodeDigits is the length of a verification code.
const CodeDigits = 6

// ErrMismatch is returned by CheckPassword when the password does not match.
var ErrMismatch = errors.New("password mismatch")

var codeSpace = big.NewInt(1_000_000)

// Hasher hashes and checks passwords at a fixed bcrypt cost.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher. Costs outside bcrypt's range fall back to
// bcrypt.DefaultCost.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares password with a stored hash. A wrong password yields
// ErrMismatch; a malformed hash yields the bcrypt error.
func (h Hasher) CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// GenerateCode returns a uniformly random 6-digit decimal code. Leading zeros
// are kept, so "004217" is a valid code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}
