package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const usedResetTokenKey = "reset:used:%s"

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an already configured client.
func NewWithClient(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

// * MarkResetTokenUsed помечает токен сброса пароля как использованный (атомарно через SETNX)
// Возвращает true если токен был использован первый раз
// Возвращает false если токен уже был использован ранее
func (r *RedisRepo) MarkResetTokenUsed(ctx context.Context, tokenHash string, ttl time.Duration) (bool, error) {
	const op = "storage.redis.MarkResetTokenUsed"

	if ttl <= 0 {
		// the token is already past its expiry and will be rejected anyway
		return true, nil
	}

	key := fmt.Sprintf(usedResetTokenKey, tokenHash)

	success, err := r.client.SetNX(ctx, key, "used", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return success, nil
}

// * IsResetTokenUsed проверяет, был ли токен уже использован
func (r *RedisRepo) IsResetTokenUsed(ctx context.Context, tokenHash string) (bool, error) {
	const op = "storage.redis.IsResetTokenUsed"

	n, err := r.client.Exists(ctx, fmt.Sprintf(usedResetTokenKey, tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

// * ReleaseResetToken снимает отметку об использовании токена
func (r *RedisRepo) ReleaseResetToken(ctx context.Context, tokenHash string) error {
	const op = "storage.redis.ReleaseResetToken"

	if err := r.client.Del(ctx, fmt.Sprintf(usedResetTokenKey, tokenHash)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * Close закрывает соединение с базой данных.
func (r *RedisRepo) Close() {
	r.client.Close()
}
