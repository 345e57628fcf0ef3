package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes; longer inputs are rejected instead.
const MaxLength = 72

var ErrTooLong = fmt.Errorf("password must be at most %d bytes", MaxLength)

type Hasher struct {
	cost      int
	dummyHash []byte
}

// New builds a Hasher with the given bcrypt cost. Out-of-range costs fall back
// to bcrypt.DefaultCost.
func New(cost int) (*Hasher, error) {
	const op = "password.New"

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Hasher{cost: cost, dummyHash: dummy}, nil
}

func (h *Hasher) Hash(plain string) ([]byte, error) {
	const op = "password.Hash"

	if len(plain) > MaxLength {
		return nil, fmt.Errorf("%s: %w", op, ErrTooLong)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return hash, nil
}

// Verify reports whether plain matches hash. A malformed hash is a mismatch.
func (h *Hasher) Verify(plain string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}

// VerifyDummy burns the same CPU as Verify against a real account and always
// reports false.
func (h *Hasher) VerifyDummy(plain string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
	return false
}

func (h *Hasher) Cost() int {
	return h.cost
}
