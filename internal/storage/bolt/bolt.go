package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketUsedResetTokens = []byte("used_reset_tokens")

// BoltRepo is the embedded single-use denylist for password-reset tokens.
// Each key is a token hash, each value the big-endian unix-millisecond
// instant after which the entry may be purged.
type BoltRepo struct {
	db  *bbolt.DB
	now func() time.Time
}

func New(ctx context.Context, path string) (*BoltRepo, error) {
	const op = "storage.bolt.New"

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open boltdb: %w", op, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUsedResetTokens)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to create bucket: %w", op, err)
	}

	return &BoltRepo{db: db, now: time.Now}, nil
}

func (r *BoltRepo) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// * MarkResetTokenUsed помечает токен как использованный
// Возвращает true если токен был использован первый раз
func (r *BoltRepo) MarkResetTokenUsed(ctx context.Context, tokenHash string, ttl time.Duration) (bool, error) {
	const op = "storage.bolt.MarkResetTokenUsed"

	if ttl <= 0 {
		return true, nil
	}

	now := r.now()
	first := false

	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketUsedResetTokens)

		key := []byte(tokenHash)
		if v := bucket.Get(key); v != nil && now.Before(decodeExpiry(v)) {
			return nil
		}

		first = true
		return bucket.Put(key, encodeExpiry(now.Add(ttl)))
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return first, nil
}

func (r *BoltRepo) IsResetTokenUsed(ctx context.Context, tokenHash string) (bool, error) {
	const op = "storage.bolt.IsResetTokenUsed"

	now := r.now()
	used := false

	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketUsedResetTokens).Get([]byte(tokenHash))
		used = v != nil && now.Before(decodeExpiry(v))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return used, nil
}

// ReleaseResetToken forgets tokenHash so the token can be claimed again.
func (r *BoltRepo) ReleaseResetToken(ctx context.Context, tokenHash string) error {
	const op = "storage.bolt.ReleaseResetToken"

	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsedResetTokens).Delete([]byte(tokenHash))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Purge removes entries whose expiry is not after now and reports how many
// were removed.
func (r *BoltRepo) Purge(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.bolt.Purge"

	removed := 0

	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketUsedResetTokens)

		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if !now.Before(decodeExpiry(v)) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return removed, nil
}

func encodeExpiry(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixMilli()))
	return buf
}

func decodeExpiry(v []byte) time.Time {
	if len(v) != 8 {
		return time.Time{}
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(v)))
}
