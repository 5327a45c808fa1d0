// Package password wraps bcrypt hashing with the enumeration defenses the
// login path relies on.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the default bcrypt cost factor used for new hashes.
const Cost = 12

// Hasher hashes and verifies passwords at a fixed cost.
type Hasher struct {
	cost int

	// dummyHash is a hash of a throwaway value at the same cost, compared
	// against when a login targets an email that does not exist so the
	// not-found path is as slow as the wrong-password path.
	dummyHash string
}

// NewHasher returns a Hasher with the given bcrypt cost. A non-positive
// cost falls back to the package default.
func NewHasher(cost int) (*Hasher, error) {
	if cost <= 0 {
		cost = Cost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-protection-dummy"), cost)
	if err != nil {
		return nil, fmt.Errorf("generating dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummyHash: string(dummy)}, nil
}

// Hash returns the bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches hash.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyWithTimingProtection verifies password against hash. When hash is
// empty (no such user) it still runs a full bcrypt comparison against the
// dummy hash and returns false, so the caller's elapsed time and result shape
// do not reveal whether the account exists. Every path through this function
// invokes the bcrypt comparison exactly once.
func (h *Hasher) VerifyWithTimingProtection(password, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(h.dummyHash), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
