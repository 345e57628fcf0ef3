package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sl "marketplace_auth/internal/lib/logger"
	"marketplace_auth/internal/lib/password"
	"marketplace_auth/internal/models"
	"marketplace_auth/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrUserInactive       = errors.New("user is inactive")
	ErrValidation         = errors.New("validation failed")
	ErrSamePassword       = errors.New("new password must differ from the current one")
	ErrForbidden          = errors.New("forbidden")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
)

type Auth struct {
	log         *slog.Logger
	hasher      *password.Hasher
	usrSaver    UserSaver
	usrProvider UserProvider
	tokens      *TokenService
	denylist    ResetTokenDenylist
	sender      EmailSender
	resetTTL    time.Duration
}

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) (uid int64, err error)
	UpdateUser(ctx context.Context, user models.User) error
	// UpdatePasswordAndRevokeTokens stores user and revokes all of its refresh
	// tokens atomically.
	UpdatePasswordAndRevokeTokens(ctx context.Context, user models.User, revokedAt time.Time) (revoked int64, err error)
}

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserWithRole(ctx context.Context, id int64) (models.User, error)
	RoleByName(ctx context.Context, name string) (models.Role, error)
}

// ResetTokenDenylist remembers consumed password-reset tokens until they
// expire on their own.
type ResetTokenDenylist interface {
	MarkResetTokenUsed(ctx context.Context, tokenHash string, ttl time.Duration) (first bool, err error)
	IsResetTokenUsed(ctx context.Context, tokenHash string) (bool, error)
	ReleaseResetToken(ctx context.Context, tokenHash string) error
}

// EmailSender delivers notifications. Callers log failures and carry on.
type EmailSender interface {
	SendPasswordResetEmail(ctx context.Context, email, firstName, token string) error
	SendWelcomeEmail(ctx context.Context, email, firstName string) error
	SendPasswordChangedNotification(ctx context.Context, email, firstName string) error
}

func New(
	log *slog.Logger,
	hasher *password.Hasher,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens *TokenService,
	denylist ResetTokenDenylist,
	sender EmailSender,
	resetTTL time.Duration,
) *Auth {
	return &Auth{
		log:         log,
		hasher:      hasher,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokens:      tokens,
		denylist:    denylist,
		sender:      sender,
		resetTTL:    resetTTL,
	}
}

// * Login проверяет учетные данные и возвращает пару токенов
func (a *Auth) Login(
	ctx context.Context,
	login, pass string,
	rememberMe bool,
) (TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.findByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			a.hasher.VerifyDummy(pass)

			log.Info("invalid credentials")
			return TokenPair{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(pass, user.PassHash) {
		log.Info("invalid credentials", slog.Int64("uid", user.ID))
		return TokenPair{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		log.Info("login attempt on deactivated account", slog.Int64("uid", user.ID))
		return TokenPair{}, ErrAccountDeactivated
	}

	withRole, err := a.usrProvider.UserWithRole(ctx, user.ID)
	if err != nil {
		log.Error("failed to load user role", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.tokens.GenerateTokens(ctx, withRole, rememberMe)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully", slog.Int64("uid", user.ID))

	return pair, nil
}

// findByLogin tries the username first and falls back to the email.
func (a *Auth) findByLogin(ctx context.Context, login string) (models.User, error) {
	user, err := a.usrProvider.UserByUsername(ctx, login)
	if err == nil || !errors.Is(err, storage.ErrUserNotFound) {
		return user, err
	}

	return a.usrProvider.UserByEmail(ctx, login)
}

func (a *Auth) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	return a.tokens.RefreshTokens(ctx, refreshToken)
}

// Logout revokes the refresh token. A second logout with the same token
// succeeds and reports alreadyLoggedOut.
func (a *Auth) Logout(ctx context.Context, refreshToken string) (alreadyLoggedOut bool, err error) {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if strings.TrimSpace(refreshToken) == "" {
		return false, fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	res, err := a.tokens.revoke(ctx, refreshToken)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	switch res {
	case revokeNotFound:
		log.Warn("refresh token not found")
		return false, ErrInvalidToken
	case revokeAlreadyRevoked:
		log.Info("already logged out")
		return true, nil
	}

	log.Info("logout successful")

	return false, nil
}

// RevokeTokens signs the target user out everywhere. Only the user themself
// or an admin may do this.
func (a *Auth) RevokeTokens(ctx context.Context, actorID int64, actorRole string, targetID int64) (int64, error) {
	const op = "auth.RevokeTokens"

	log := a.log.With(
		slog.String("op", op),
		slog.Int64("actor_uid", actorID),
		slog.Int64("target_uid", targetID),
	)

	if actorID != targetID && actorRole != models.RoleAdmin {
		log.Warn("revoke tokens forbidden")
		return 0, ErrForbidden
	}

	user, err := a.usrProvider.UserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}

		log.Error("failed to get user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return 0, ErrUserInactive
	}

	n, err := a.tokens.RevokeAllUserTokens(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// ForgotPassword answers the same way whether or not the address belongs to
// an active account. Only a match gets a reset email.
func (a *Auth) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("password reset requested for unknown email")
			return nil
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.Int64("uid", user.ID))

	if !user.IsActive {
		log.Info("password reset requested for deactivated account")
		return nil
	}

	token, err := a.tokens.GeneratePasswordResetToken(user.ID, user.Email, a.resetTTL)
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sender.SendPasswordResetEmail(ctx, user.Email, user.FirstName, token); err != nil {
		log.Error("failed to send reset email", sl.Err(err))
		return nil
	}

	log.Info("password reset email queued")

	return nil
}

// ValidateResetToken reports whether token could still be used to reset a
// password, without consuming it.
func (a *Auth) ValidateResetToken(ctx context.Context, token string) error {
	const op = "auth.ValidateResetToken"

	_, _, err := a.checkResetToken(ctx, op, token)
	return err
}

func (a *Auth) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	if newPassword != confirmPassword {
		return fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	claims, user, err := a.checkResetToken(ctx, op, token)
	if err != nil {
		return err
	}

	log = log.With(slog.Int64("uid", user.ID))

	if a.hasher.Verify(newPassword, user.PassHash) {
		return ErrSamePassword
	}

	passHash, err := a.hashPassword(newPassword)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	first, err := a.denylist.MarkResetTokenUsed(ctx, claims.TokenHash, claims.ExpiresAt.Sub(a.tokens.now()))
	if err != nil {
		log.Error("failed to mark reset token used", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !first {
		log.Warn("reset token already used")
		return ErrInvalidToken
	}

	if err := a.setPassword(ctx, user, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))

		// * пароль не изменен, токен можно использовать повторно
		if relErr := a.denylist.ReleaseResetToken(context.WithoutCancel(ctx), claims.TokenHash); relErr != nil {
			log.Error("failed to release reset token", sl.Err(relErr))
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset")

	return nil
}

// checkResetToken validates a reset token against the current state of its
// user. Token defects and stale emails both read as ErrInvalidToken.
func (a *Auth) checkResetToken(ctx context.Context, op, token string) (*ResetClaims, models.User, error) {
	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.ValidatePasswordResetToken(token)
	if err != nil {
		log.Info("invalid reset token")
		return nil, models.User{}, ErrInvalidToken
	}

	used, err := a.denylist.IsResetTokenUsed(ctx, claims.TokenHash)
	if err != nil {
		log.Error("failed to check reset token", sl.Err(err))
		return nil, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if used {
		log.Warn("reset token already used", slog.Int64("uid", claims.UserID))
		return nil, models.User{}, ErrInvalidToken
	}

	user, err := a.usrProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, models.User{}, ErrInvalidToken
		}

		log.Error("failed to get user", sl.Err(err))
		return nil, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return nil, models.User{}, ErrUserInactive
	}

	if !strings.EqualFold(claims.Email, user.Email) {
		log.Warn("reset token email does not match user", slog.Int64("uid", user.ID))
		return nil, models.User{}, ErrInvalidToken
	}

	return claims, user, nil
}

func (a *Auth) ChangePassword(
	ctx context.Context,
	userID int64,
	currentPassword, newPassword, confirmPassword string,
) error {
	const op = "auth.ChangePassword"

	log := a.log.With(
		slog.String("op", op),
		slog.Int64("uid", userID),
	)

	if newPassword != confirmPassword {
		return fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return ErrUserInactive
	}

	if !a.hasher.Verify(currentPassword, user.PassHash) {
		log.Info("current password mismatch")
		return ErrInvalidCredentials
	}

	if a.hasher.Verify(newPassword, user.PassHash) {
		return ErrSamePassword
	}

	passHash, err := a.hashPassword(newPassword)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.setPassword(ctx, user, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed")

	return nil
}

// setPassword stores the new hash and signs the user out everywhere in one
// store transaction, then sends the notification.
func (a *Auth) setPassword(ctx context.Context, user models.User, passHash []byte) error {
	now := a.tokens.now()

	user.PassHash = passHash
	user.UpdatedAt = now

	revoked, err := a.usrSaver.UpdatePasswordAndRevokeTokens(ctx, user, now)
	if err != nil {
		return err
	}

	a.log.Info("password updated, sessions revoked",
		slog.Int64("uid", user.ID),
		slog.Int64("count", revoked),
	)

	if err := a.sender.SendPasswordChangedNotification(ctx, user.Email, user.FirstName); err != nil {
		a.log.Error("failed to send password changed notification",
			slog.Int64("uid", user.ID),
			sl.Err(err),
		)
	}

	return nil
}

type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func (a *Auth) RegisterNewUser(ctx context.Context, req RegisterRequest) (int64, error) {
	const op = "auth.RegisterNewUser"

	log := a.log.With(
		slog.String("op", op),
	)

	log.Info("Registering new user")

	role, err := a.usrProvider.RoleByName(ctx, models.RoleCustomer)
	if err != nil {
		log.Error("failed to get default role", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := a.hashPassword(req.Password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.usrSaver.SaveUser(ctx, models.User{
		Username:  req.Username,
		Email:     req.Email,
		PassHash:  passHash,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		RoleID:    role.ID,
		IsActive:  true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("User already exists")

			return 0, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("Failed to save user", sl.Err(err))

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sender.SendWelcomeEmail(ctx, req.Email, req.FirstName); err != nil {
		log.Error("failed to send welcome email", sl.Err(err))
	}

	log.Info("user registered", slog.Int64("uid", id))

	return id, nil
}

func (a *Auth) hashPassword(plain string) ([]byte, error) {
	hash, err := a.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, err
	}

	return hash, nil
}
