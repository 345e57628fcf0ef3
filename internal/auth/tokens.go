package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketplace_auth/internal/lib/jwt"
	sl "marketplace_auth/internal/lib/logger"
	"marketplace_auth/internal/models"
	"marketplace_auth/internal/storage"
)

const resetEmailClaim = "email"

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// ResetClaims are the facts carried by a valid password-reset token.
type ResetClaims struct {
	UserID    int64
	Email     string
	ExpiresAt time.Time
	// TokenHash identifies the token in the single-use denylist.
	TokenHash string
}

type TokenStore interface {
	SaveRefreshToken(ctx context.Context, rt models.RefreshToken) (int64, error)
	RefreshTokenByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id int64, revokedAt time.Time) error
	RotateRefreshToken(ctx context.Context, oldID int64, revokedAt time.Time, next models.RefreshToken) (int64, error)
	RevokeAllUserTokens(ctx context.Context, userID int64, revokedAt time.Time) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type TokenService struct {
	log           *slog.Logger
	signer        *jwt.Signer
	store         TokenStore
	users         UserProvider
	refreshTTL    time.Duration
	rememberMeTTL time.Duration
	now           func() time.Time
}

func NewTokenService(
	log *slog.Logger,
	signer *jwt.Signer,
	store TokenStore,
	users UserProvider,
	refreshTTL, rememberMeTTL time.Duration,
) *TokenService {
	return &TokenService{
		log:           log,
		signer:        signer,
		store:         store,
		users:         users,
		refreshTTL:    refreshTTL,
		rememberMeTTL: rememberMeTTL,
		now:           time.Now,
	}
}

// * GenerateTokens выпускает access token и новый refresh token для пользователя
func (s *TokenService) GenerateTokens(ctx context.Context, user models.User, rememberMe bool) (TokenPair, error) {
	const op = "auth.GenerateTokens"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("uid", user.ID),
	)

	pair, rt, err := s.mint(user, s.lifetime(rememberMe))
	if err != nil {
		log.Error("failed to mint tokens", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.store.SaveRefreshToken(ctx, rt); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("tokens issued", slog.Bool("remember_me", rememberMe))

	return pair, nil
}

// RefreshTokens exchanges a refresh token for a new pair. The presented token
// is revoked in the same transaction that stores its successor, so it can be
// exchanged at most once.
func (s *TokenService) RefreshTokens(ctx context.Context, rawToken string) (TokenPair, error) {
	const op = "auth.RefreshTokens"

	log := s.log.With(slog.String("op", op))

	rt, err := s.store.RefreshTokenByHash(ctx, jwt.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			log.Warn("refresh token not found")
			return TokenPair{}, ErrInvalidToken
		}

		log.Error("failed to load refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.Int64("uid", rt.UserID))
	now := s.now()

	if rt.IsExpired(now) {
		log.Info("refresh token expired")
		return TokenPair{}, ErrTokenExpired
	}

	if rt.Revoked || rt.Used {
		log.Warn("revoked refresh token presented, possible replay", slog.Int64("token_id", rt.ID))
		return TokenPair{}, ErrTokenRevoked
	}

	user, err := s.users.UserWithRole(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token owner not found")
			return TokenPair{}, ErrUserInactive
		}

		log.Error("failed to load user", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		log.Info("refresh token owner is deactivated")
		return TokenPair{}, ErrUserInactive
	}

	// * ротация сохраняет класс времени жизни (remember me)
	pair, next, err := s.mint(user, s.lifetime(rt.Lifetime() > s.refreshTTL))
	if err != nil {
		log.Error("failed to mint tokens", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.store.RotateRefreshToken(ctx, rt.ID, now, next); err != nil {
		if errors.Is(err, storage.ErrTokenAlreadyRevoked) {
			log.Warn("refresh token rotated concurrently", slog.Int64("token_id", rt.ID))
			return TokenPair{}, ErrTokenRevoked
		}

		log.Error("failed to rotate refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh successful")

	return pair, nil
}

// RevokeToken revokes a single refresh token and reports whether it existed.
// Revoking an already revoked token is not an error.
func (s *TokenService) RevokeToken(ctx context.Context, rawToken string) (bool, error) {
	res, err := s.revoke(ctx, rawToken)
	if err != nil {
		return false, err
	}

	return res != revokeNotFound, nil
}

type revokeResult int

const (
	revokeNotFound revokeResult = iota
	revokeDone
	revokeAlreadyRevoked
)

func (s *TokenService) revoke(ctx context.Context, rawToken string) (revokeResult, error) {
	const op = "auth.RevokeToken"

	log := s.log.With(slog.String("op", op))

	rt, err := s.store.RefreshTokenByHash(ctx, jwt.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return revokeNotFound, nil
		}

		log.Error("failed to load refresh token", sl.Err(err))
		return revokeNotFound, fmt.Errorf("%s: %w", op, err)
	}

	if rt.Revoked {
		return revokeAlreadyRevoked, nil
	}

	if err := s.store.RevokeRefreshToken(ctx, rt.ID, s.now()); err != nil {
		if errors.Is(err, storage.ErrTokenAlreadyRevoked) {
			return revokeAlreadyRevoked, nil
		}

		log.Error("failed to revoke refresh token", sl.Err(err))
		return revokeNotFound, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh token revoked", slog.Int64("uid", rt.UserID))

	return revokeDone, nil
}

// * RevokeAllUserTokens отзывает все активные refresh токены пользователя
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID int64) (int64, error) {
	const op = "auth.RevokeAllUserTokens"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("uid", userID),
	)

	n, err := s.store.RevokeAllUserTokens(ctx, userID, s.now())
	if err != nil {
		log.Error("failed to revoke user tokens", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user tokens revoked", slog.Int64("count", n))

	return n, nil
}

func (s *TokenService) GeneratePasswordResetToken(userID int64, email string, ttl time.Duration) (string, error) {
	const op = "auth.GeneratePasswordResetToken"

	token, err := s.signer.IssueShortLivedToken(
		userID,
		jwt.PurposePasswordReset,
		map[string]string{resetEmailClaim: email},
		ttl,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// ValidatePasswordResetToken never says why a token was rejected; every
// failure is ErrInvalidToken.
func (s *TokenService) ValidatePasswordResetToken(token string) (*ResetClaims, error) {
	claims, err := s.signer.Validate(token, jwt.PurposePasswordReset)
	if err != nil {
		return nil, ErrInvalidToken
	}

	email := claims.Extra[resetEmailClaim]
	if email == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return &ResetClaims{
		UserID:    claims.UserID,
		Email:     email,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenHash: jwt.HashToken(token),
	}, nil
}

// * CleanupExpiredTokens удаляет истекшие refresh токены
func (s *TokenService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	const op = "auth.CleanupExpiredTokens"

	n, err := s.store.DeleteExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *TokenService) lifetime(rememberMe bool) time.Duration {
	if rememberMe {
		return s.rememberMeTTL
	}
	return s.refreshTTL
}

func (s *TokenService) mint(user models.User, refreshTTL time.Duration) (TokenPair, models.RefreshToken, error) {
	access, expiresAt, err := s.signer.IssueAccessToken(user.ID, user.Role, nil)
	if err != nil {
		return TokenPair{}, models.RefreshToken{}, err
	}

	raw, err := jwt.NewRefreshToken()
	if err != nil {
		return TokenPair{}, models.RefreshToken{}, err
	}

	now := s.now()
	rt := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: jwt.HashToken(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(refreshTTL),
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: rt.ExpiresAt,
	}, rt, nil
}
