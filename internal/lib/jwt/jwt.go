package jwt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PurposeAccess        = "access"
	PurposePasswordReset = "password-reset"
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID  int64             `json:"uid"`
	Role    string            `json:"role,omitempty"`
	Purpose string            `json:"purpose"`
	Extra   map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret   []byte
	issuer   string
	audience string
	tokenTTL time.Duration
	now      func() time.Time
}

func NewSigner(secret, issuer, audience string, accessTokenTTL time.Duration) *Signer {
	return &Signer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		tokenTTL: accessTokenTTL,
		now:      time.Now,
	}
}

// * IssueAccessToken выпускает короткоживущий access token
func (s *Signer) IssueAccessToken(userID int64, role string, extra map[string]string) (string, time.Time, error) {
	const op = "jwt.IssueAccessToken"

	expiresAt := s.now().Add(s.tokenTTL)

	token, err := s.sign(userID, role, PurposeAccess, extra, expiresAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return token, expiresAt, nil
}

// * IssueShortLivedToken выпускает подписанный токен с заданным purpose и TTL
func (s *Signer) IssueShortLivedToken(userID int64, purpose string, extra map[string]string, ttl time.Duration) (string, error) {
	const op = "jwt.IssueShortLivedToken"

	if purpose == "" || purpose == PurposeAccess {
		return "", fmt.Errorf("%s: purpose %q is not allowed", op, purpose)
	}

	token, err := s.sign(userID, "", purpose, extra, s.now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// Validate checks signature, algorithm, expiry, issuer, audience and purpose.
// Every failure is reported as ErrInvalidToken.
func (s *Signer) Validate(tokenStr, expectedPurpose string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Purpose != expectedPurpose {
		return nil, fmt.Errorf("%w: unexpected purpose %q", ErrInvalidToken, claims.Purpose)
	}

	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}

	return claims, nil
}

func (s *Signer) sign(userID int64, role, purpose string, extra map[string]string, expiresAt time.Time) (string, error) {
	now := s.now()

	claims := Claims{
		UserID:  userID,
		Role:    role,
		Purpose: purpose,
		Extra:   extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			Audience:  audience(s.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

func audience(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}

// NewRefreshToken returns an opaque, URL-safe bearer string. It is not a JWT.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("jwt.NewRefreshToken: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// * HashToken создает SHA256 хеш токена
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
