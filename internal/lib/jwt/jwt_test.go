package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret-key"
	testIssuer   = "marketplace-auth"
	testAudience = "marketplace-api"
)

func newTestSigner() *Signer {
	return NewSigner(testSecret, testIssuer, testAudience, 15*time.Minute)
}

func TestIssueAccessToken_RoundTrip(t *testing.T) {
	s := newTestSigner()

	before := time.Now()
	tok, exp, err := s.IssueAccessToken(42, "vendor", map[string]string{"username": "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	assert.WithinDuration(t, before.Add(15*time.Minute), exp, 2*time.Second)

	claims, err := s.Validate(tok, PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "vendor", claims.Role)
	assert.Equal(t, PurposeAccess, claims.Purpose)
	assert.Equal(t, "alice", claims.Extra["username"])
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{testAudience}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueShortLivedToken_RoundTrip(t *testing.T) {
	s := newTestSigner()

	tok, err := s.IssueShortLivedToken(7, PurposePasswordReset, map[string]string{"email": "alice@example.com"}, time.Hour)
	require.NoError(t, err)

	claims, err := s.Validate(tok, PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Extra["email"])
	assert.Empty(t, claims.Role)
}

func TestIssueShortLivedToken_RejectsAccessPurpose(t *testing.T) {
	s := newTestSigner()

	_, err := s.IssueShortLivedToken(1, PurposeAccess, nil, time.Hour)
	assert.Error(t, err)

	_, err = s.IssueShortLivedToken(1, "", nil, time.Hour)
	assert.Error(t, err)
}

func TestValidate_PurposeIsolation(t *testing.T) {
	s := newTestSigner()

	access, _, err := s.IssueAccessToken(1, "customer", nil)
	require.NoError(t, err)
	reset, err := s.IssueShortLivedToken(1, PurposePasswordReset, nil, time.Hour)
	require.NoError(t, err)

	_, err = s.Validate(access, PurposePasswordReset)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Validate(reset, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_FailsClosed(t *testing.T) {
	s := newTestSigner()

	valid, _, err := s.IssueAccessToken(1, "customer", nil)
	require.NoError(t, err)

	expired, err := s.IssueShortLivedToken(1, PurposePasswordReset, nil, -time.Minute)
	require.NoError(t, err)

	otherSecret, _, err := NewSigner("another-secret", testIssuer, testAudience, time.Minute).IssueAccessToken(1, "customer", nil)
	require.NoError(t, err)

	otherIssuer, _, err := NewSigner(testSecret, "someone-else", testAudience, time.Minute).IssueAccessToken(1, "customer", nil)
	require.NoError(t, err)

	otherAudience, _, err := NewSigner(testSecret, testIssuer, "other-api", time.Minute).IssueAccessToken(1, "customer", nil)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:  1,
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "1",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:  1,
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "1",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:  1,
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   testIssuer,
			Subject:  "1",
			Audience: jwt.ClaimStrings{testAudience},
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	subjectMismatch, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:  1,
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "2",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name    string
		token   string
		purpose string
	}{
		{name: "empty", token: "", purpose: PurposeAccess},
		{name: "garbage", token: "not.a.jwt", purpose: PurposeAccess},
		{name: "tampered signature", token: tampered, purpose: PurposeAccess},
		{name: "expired", token: expired, purpose: PurposePasswordReset},
		{name: "wrong secret", token: otherSecret, purpose: PurposeAccess},
		{name: "wrong issuer", token: otherIssuer, purpose: PurposeAccess},
		{name: "wrong audience", token: otherAudience, purpose: PurposeAccess},
		{name: "alg none", token: noneAlg, purpose: PurposeAccess},
		{name: "alg hs512", token: hs512, purpose: PurposeAccess},
		{name: "missing exp", token: noExp, purpose: PurposeAccess},
		{name: "subject mismatch", token: subjectMismatch, purpose: PurposeAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				claims *Claims
				err    error
			)
			assert.NotPanics(t, func() {
				claims, err = s.Validate(tt.token, tt.purpose)
			})
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestValidate_UsesClock(t *testing.T) {
	s := newTestSigner()

	tok, err := s.IssueShortLivedToken(3, PurposePasswordReset, nil, time.Hour)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = s.Validate(tok, PurposePasswordReset)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRefreshToken(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		tok, err := NewRefreshToken()
		require.NoError(t, err)
		assert.Len(t, tok, 43)
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, ".")

		_, dup := seen[tok]
		assert.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("token-a"))
	assert.NotEqual(t, a, HashToken("token-b"))
}
