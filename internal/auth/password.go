// Package auth: credential hashing.
//
// WHY BCRYPT?
// Passwords are stored as bcrypt digests. bcrypt is deliberately slow and
// tunable through its cost factor, so an offline attacker holding the users
// table pays that cost for every guess. A fast hash (MD5, SHA-256) would let
// a GPU try billions of candidates per second.
//
// The digest is self-describing:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 algorithm version
//
// Salt and cost travel inside the string, so Verify needs nothing else.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the production work factor (~250ms per hash on a modern
// core). Tests drop to bcrypt.MinCost through NewPasswordHasherWithCost.
const defaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs would be
// truncated silently by some implementations, so we refuse them.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for inputs over 72 bytes.
var ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using the production cost.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: defaultCost}
}

// NewPasswordHasherWithCost returns a hasher with a custom cost.
// Intended for tests in other packages; cost 4 is far too weak for real use.
func NewPasswordHasherWithCost(cost int) *PasswordHasher {
	return &PasswordHasher{cost: cost}
}

// Hash returns a salted bcrypt digest of plaintext.
func (p *PasswordHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches digest.
//
// It never fails loudly: a mismatch, an empty digest, and a digest that is
// not bcrypt at all all return false. Callers treat every "no" the same way,
// so there is nothing to gain from distinguishing them.
//
// bcrypt.CompareHashAndPassword compares in constant time.
func (p *PasswordHasher) Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
