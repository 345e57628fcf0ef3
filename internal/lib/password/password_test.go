package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := New(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("OldPass1!")
	require.NoError(t, err)
	assert.NotEqual(t, "OldPass1!", string(hash))

	assert.True(t, h.Verify("OldPass1!", hash))
	assert.False(t, h.Verify("oldpass1!", hash))
	assert.False(t, h.Verify("", hash))
}

func TestHash_IsSalted(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerify_MalformedHash(t *testing.T) {
	h := newTestHasher(t)

	tests := []struct {
		name string
		hash []byte
	}{
		{name: "nil", hash: nil},
		{name: "empty", hash: []byte{}},
		{name: "garbage", hash: []byte("not-a-bcrypt-hash")},
		{name: "truncated", hash: []byte("$2a$04$abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, h.Verify("whatever", tt.hash))
			})
		})
	}
}

func TestVerifyDummy(t *testing.T) {
	h := newTestHasher(t)
	assert.False(t, h.VerifyDummy("dummy-password-for-timing"))
}

func TestHash_TooLong(t *testing.T) {
	h := newTestHasher(t)

	_, err := h.Hash(strings.Repeat("a", MaxLength+1))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestNew_InvalidCostFallsBack(t *testing.T) {
	h, err := New(0)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, h.Cost())
}
