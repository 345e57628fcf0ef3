package storage

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrRoleNotFound         = errors.New("role not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrTokenAlreadyRevoked is returned by conditional revoke/rotate updates
	// that matched no active row.
	ErrTokenAlreadyRevoked = errors.New("refresh token already revoked")
)
