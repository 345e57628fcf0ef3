package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"marketplace_auth/internal/models"
	"marketplace_auth/internal/storage"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteRepo is the embedded credential store. Timestamps are kept as unix
// milliseconds so range predicates compare numerically.
type SQLiteRepo struct {
	db *sql.DB
}

// New opens the database at path (":memory:" for tests) and applies migrations.
func New(ctx context.Context, path string) (*SQLiteRepo, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}

	// * один писатель; для ":memory:" это еще и единственная копия базы
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: failed to set pragma: %w", op, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &SQLiteRepo{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepo) SaveUser(ctx context.Context, user models.User) (int64, error) {
	const op = "storage.sqlite.SaveUser"

	const query = `
		INSERT INTO users (username, email, password_hash, first_name, last_name, role_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	res, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.PassHash,
		user.FirstName,
		user.LastName,
		user.RoleID,
		user.IsActive,
		user.CreatedAt.UnixMilli(),
		user.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

const userColumns = `u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.role_id, u.is_active, u.created_at, u.updated_at`

func (r *SQLiteRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	return r.user(ctx, "storage.sqlite.UserByID",
		`SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
}

func (r *SQLiteRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.user(ctx, "storage.sqlite.UserByUsername",
		`SELECT `+userColumns+` FROM users u WHERE u.username = ?`, username)
}

// UserByEmail matches case-insensitively through the column collation.
func (r *SQLiteRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.user(ctx, "storage.sqlite.UserByEmail",
		`SELECT `+userColumns+` FROM users u WHERE u.email = ?`, email)
}

func (r *SQLiteRepo) UserWithRole(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.sqlite.UserWithRole"

	query := `
		SELECT ` + userColumns + `, r.name
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = ?
	`

	var (
		u                    models.User
		createdAt, updatedAt int64
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.FirstName,
		&u.LastName,
		&u.RoleID,
		&u.IsActive,
		&createdAt,
		&updatedAt,
		&u.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	u.CreatedAt = time.UnixMilli(createdAt)
	u.UpdatedAt = time.UnixMilli(updatedAt)

	return u, nil
}

func (r *SQLiteRepo) user(ctx context.Context, op, query string, arg any) (models.User, error) {
	var (
		u                    models.User
		createdAt, updatedAt int64
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.FirstName,
		&u.LastName,
		&u.RoleID,
		&u.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	u.CreatedAt = time.UnixMilli(createdAt)
	u.UpdatedAt = time.UnixMilli(updatedAt)

	return u, nil
}

// UpdateUser writes every mutable column of user.
func (r *SQLiteRepo) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.sqlite.UpdateUser"

	return updateUser(ctx, r.db, op, user)
}

// UpdatePasswordAndRevokeTokens stores user and revokes every active refresh
// token of the user in one transaction. Either both happen or neither does.
func (r *SQLiteRepo) UpdatePasswordAndRevokeTokens(ctx context.Context, user models.User, revokedAt time.Time) (int64, error) {
	const op = "storage.sqlite.UpdatePasswordAndRevokeTokens"

	var revoked int64

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE user_id = ? AND revoked = 0`,
			revokedAt.UnixMilli(), user.ID,
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if revoked, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return updateUser(ctx, tx, op, user)
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

func updateUser(ctx context.Context, db execer, op string, user models.User) error {
	const query = `
		UPDATE users
		SET username = ?, email = ?, password_hash = ?, first_name = ?, last_name = ?,
		    role_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now()
	}

	res, err := db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.PassHash,
		user.FirstName,
		user.LastName,
		user.RoleID,
		user.IsActive,
		user.UpdatedAt.UnixMilli(),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return expectOneRow(op, res, storage.ErrUserNotFound)
}

func (r *SQLiteRepo) RoleByName(ctx context.Context, name string) (models.Role, error) {
	const op = "storage.sqlite.RoleByName"

	var role models.Role

	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM roles WHERE name = ?`, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Role{}, storage.ErrRoleNotFound
		}

		return models.Role{}, fmt.Errorf("%s: %w", op, err)
	}

	return role, nil
}

func (r *SQLiteRepo) SaveRefreshToken(ctx context.Context, rt models.RefreshToken) (int64, error) {
	const op = "storage.sqlite.SaveRefreshToken"

	id, err := insertRefreshToken(ctx, r.db, rt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (r *SQLiteRepo) RefreshTokenByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshTokenByHash"

	const query = `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked, revoked_at, used
		FROM refresh_tokens
		WHERE token_hash = ?
	`

	var (
		rt                  models.RefreshToken
		issuedAt, expiresAt int64
		revokedAt           sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&issuedAt,
		&expiresAt,
		&rt.Revoked,
		&revokedAt,
		&rt.Used,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	rt.IssuedAt = time.UnixMilli(issuedAt)
	rt.ExpiresAt = time.UnixMilli(expiresAt)
	if revokedAt.Valid {
		t := time.UnixMilli(revokedAt.Int64)
		rt.RevokedAt = &t
	}

	return rt, nil
}

// RevokeRefreshToken revokes the row only if it is still unrevoked.
func (r *SQLiteRepo) RevokeRefreshToken(ctx context.Context, id int64, revokedAt time.Time) error {
	const op = "storage.sqlite.RevokeRefreshToken"

	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE id = ? AND revoked = 0`,
		revokedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return expectOneRow(op, res, storage.ErrTokenAlreadyRevoked)
}

// RotateRefreshToken revokes oldID and inserts next in one transaction. It
// fails with storage.ErrTokenAlreadyRevoked when oldID was revoked first.
func (r *SQLiteRepo) RotateRefreshToken(
	ctx context.Context,
	oldID int64,
	revokedAt time.Time,
	next models.RefreshToken,
) (int64, error) {
	const op = "storage.sqlite.RotateRefreshToken"

	var newID int64

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE id = ? AND revoked = 0 AND used = 0`,
			revokedAt.UnixMilli(), oldID,
		)
		if err != nil {
			return err
		}

		if err := expectOneRow(op, res, storage.ErrTokenAlreadyRevoked); err != nil {
			return err
		}

		newID, err = insertRefreshToken(ctx, tx, next)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrTokenAlreadyRevoked) {
			return 0, err
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return newID, nil
}

func (r *SQLiteRepo) RevokeAllUserTokens(ctx context.Context, userID int64, revokedAt time.Time) (int64, error) {
	const op = "storage.sqlite.RevokeAllUserTokens"

	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE user_id = ? AND revoked = 0`,
		revokedAt.UnixMilli(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (r *SQLiteRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.sqlite.DeleteExpiredRefreshTokens"

	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, db execer, rt models.RefreshToken) (int64, error) {
	const query = `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, revoked, revoked_at, used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var revokedAt sql.NullInt64
	if rt.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: rt.RevokedAt.UnixMilli(), Valid: true}
	}

	res, err := db.ExecContext(ctx, query,
		rt.UserID,
		rt.TokenHash,
		rt.IssuedAt.UnixMilli(),
		rt.ExpiresAt.UnixMilli(),
		rt.Revoked,
		revokedAt,
		rt.Used,
	)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// withTx commits when fn succeeds and rolls back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

func expectOneRow(op string, res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}

	// * драйвер может вернуть только первичный код
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}
