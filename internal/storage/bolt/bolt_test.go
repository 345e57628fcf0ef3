package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *BoltRepo {
	t.Helper()

	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "denylist.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, repo.Close())
	})

	return repo
}

func TestMarkResetTokenUsed_FirstUseOnly(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t)

	first, err := repo.MarkResetTokenUsed(ctx, "hash-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkResetTokenUsed(ctx, "hash-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	used, err := repo.IsResetTokenUsed(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, used)

	other, err := repo.MarkResetTokenUsed(ctx, "hash-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMarkResetTokenUsed_ExpiredEntryIsReusable(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t)

	now := time.Now()
	repo.now = func() time.Time { return now }

	first, err := repo.MarkResetTokenUsed(ctx, "hash-1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	repo.now = func() time.Time { return now.Add(2 * time.Minute) }

	used, err := repo.IsResetTokenUsed(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, used)

	again, err := repo.MarkResetTokenUsed(ctx, "hash-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestMarkResetTokenUsed_NonPositiveTTL(t *testing.T) {
	repo := setupTestStorage(t)

	ok, err := repo.MarkResetTokenUsed(context.Background(), "hash-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	used, err := repo.IsResetTokenUsed(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestReleaseResetToken(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t)

	_, err := repo.MarkResetTokenUsed(ctx, "hash-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, repo.ReleaseResetToken(ctx, "hash-1"))

	used, err := repo.IsResetTokenUsed(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, used)

	first, err := repo.MarkResetTokenUsed(ctx, "hash-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	require.NoError(t, repo.ReleaseResetToken(ctx, "missing"))
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	repo := setupTestStorage(t)

	now := time.Now()
	repo.now = func() time.Time { return now }

	_, err := repo.MarkResetTokenUsed(ctx, "short", time.Minute)
	require.NoError(t, err)
	_, err = repo.MarkResetTokenUsed(ctx, "long", time.Hour)
	require.NoError(t, err)

	removed, err := repo.Purge(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = repo.Purge(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, removed)

	used, err := repo.IsResetTokenUsed(ctx, "long")
	require.NoError(t, err)
	assert.True(t, used)
}

func TestNew_InvalidPath(t *testing.T) {
	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "db"))
	assert.Error(t, err)
	assert.Nil(t, repo)
}
