package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"marketplace_auth/internal/config"
	"marketplace_auth/internal/models"
	"marketplace_auth/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.Postgres) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) SaveUser(ctx context.Context, user models.User) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (username, email, password_hash, first_name, last_name, role_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;
	`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	var id int64

	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PassHash,
		user.FirstName,
		user.LastName,
		user.RoleID,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

const userColumns = `u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.role_id, u.is_active, u.created_at, u.updated_at`

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	return r.user(ctx, "storage.postgres.UserByID",
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
}

func (r *PostgresRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.user(ctx, "storage.postgres.UserByUsername",
		`SELECT `+userColumns+` FROM users u WHERE u.username = $1`, username)
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.user(ctx, "storage.postgres.UserByEmail",
		`SELECT `+userColumns+` FROM users u WHERE LOWER(u.email) = LOWER($1)`, email)
}

func (r *PostgresRepo) UserWithRole(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.postgres.UserWithRole"

	query := `
		SELECT ` + userColumns + `, r.name
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1
	`

	var u models.User

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.FirstName,
		&u.LastName,
		&u.RoleID,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.Role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) user(ctx context.Context, op, query string, arg any) (models.User, error) {
	var u models.User

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.FirstName,
		&u.LastName,
		&u.RoleID,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.UpdateUser"

	return updateUser(ctx, r.pool, op, user)
}

// UpdatePasswordAndRevokeTokens stores user and revokes every active refresh
// token of the user in one transaction.
func (r *PostgresRepo) UpdatePasswordAndRevokeTokens(ctx context.Context, user models.User, revokedAt time.Time) (int64, error) {
	const op = "storage.postgres.UpdatePasswordAndRevokeTokens"

	var revoked int64

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE user_id = $2 AND revoked = FALSE`,
			revokedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		revoked = tag.RowsAffected()

		return updateUser(ctx, tx, op, user)
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateUser(ctx context.Context, db execer, op string, user models.User) error {
	const query = `
		UPDATE users
		SET username = $1, email = $2, password_hash = $3, first_name = $4, last_name = $5,
		    role_id = $6, is_active = $7, updated_at = $8
		WHERE id = $9
	`

	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now()
	}

	tag, err := db.Exec(ctx, query,
		user.Username,
		user.Email,
		user.PassHash,
		user.FirstName,
		user.LastName,
		user.RoleID,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) RoleByName(ctx context.Context, name string) (models.Role, error) {
	const op = "storage.postgres.RoleByName"

	var role models.Role

	err := r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Role{}, storage.ErrRoleNotFound
		}

		return models.Role{}, fmt.Errorf("%s: %w", op, err)
	}

	return role, nil
}

func (r *PostgresRepo) SaveRefreshToken(ctx context.Context, rt models.RefreshToken) (int64, error) {
	const op = "storage.postgres.SaveRefreshToken"

	id, err := insertRefreshToken(ctx, r.pool, rt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) RefreshTokenByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	const query = `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked, revoked_at, used
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var rt models.RefreshToken

	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.IssuedAt,
		&rt.ExpiresAt,
		&rt.Revoked,
		&rt.RevokedAt,
		&rt.Used,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return rt, nil
}

func (r *PostgresRepo) RevokeRefreshToken(ctx context.Context, id int64, revokedAt time.Time) error {
	const op = "storage.postgres.RevokeRefreshToken"

	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id = $2 AND revoked = FALSE`,
		revokedAt, id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrTokenAlreadyRevoked
	}

	return nil
}

// RotateRefreshToken revokes oldID and inserts next in one transaction. The
// row lock taken by the conditional update serializes concurrent rotations.
func (r *PostgresRepo) RotateRefreshToken(
	ctx context.Context,
	oldID int64,
	revokedAt time.Time,
	next models.RefreshToken,
) (int64, error) {
	const op = "storage.postgres.RotateRefreshToken"

	var newID int64

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id = $2 AND revoked = FALSE AND used = FALSE`,
			revokedAt, oldID,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return storage.ErrTokenAlreadyRevoked
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

func (r *PostgresRepo) RevokeAllUserTokens(ctx context.Context, userID int64, revokedAt time.Time) (int64, error) {
	const op = "storage.postgres.RevokeAllUserTokens"

	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE user_id = $2 AND revoked = FALSE`,
		revokedAt, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredRefreshTokens"

	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertRefreshToken(ctx context.Context, q querier, rt models.RefreshToken) (int64, error) {
	const query = `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, revoked, revoked_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64

	err := q.QueryRow(ctx, query,
		rt.UserID,
		rt.TokenHash,
		rt.IssuedAt,
		rt.ExpiresAt,
		rt.Revoked,
		rt.RevokedAt,
		rt.Used,
	).Scan(&id)

	return id, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg config.Postgres) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}
