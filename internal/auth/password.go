package auth

import (
	"errors"
	"fmt"

	"github.com/isdelr/goals-be/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

// Hasher salts and hashes passwords with bcrypt.
type Hasher struct {
	cost int
	// dummy is compared against when an account does not exist, so a
	// failed login costs one bcrypt comparison either way.
	dummy []byte
}

// NewHasher creates a Hasher with the given bcrypt cost.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Hash returns the salted hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Invalid("password", "A senha deve ter no máximo 72 bytes.")
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare reports whether password matches hash.
func (h *Hasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CompareDummy spends the same work as Compare and always fails.
func (h *Hasher) CompareDummy(password string) bool {
	bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	return false
}
