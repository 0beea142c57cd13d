package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a store in a temp directory with a controllable clock.
func setupTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "data", "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStore_PutGet(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	data := []byte("%PDF-1.7\n...")
	a, err := s.Put(ctx, "report.pdf", 3, data)
	require.NoError(t, err)
	assert.Len(t, a.ID, 21)
	assert.Equal(t, int64(len(data)), a.Size)
	assert.Nil(t, a.Data)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Filename)
	assert.Equal(t, 3, got.Pages)
	assert.Equal(t, data, got.Data)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	a, err := s.Put(ctx, "a.pdf", 1, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, a.ID))
	assert.ErrorIs(t, s.Delete(ctx, a.ID), ErrNotFound)

	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s, now := setupTestStore(t)
	ctx := context.Background()

	first, err := s.Put(ctx, "first.pdf", 1, []byte("1"))
	require.NoError(t, err)
	*now = now.Add(time.Minute)
	second, err := s.Put(ctx, "second.pdf", 2, []byte("22"))
	require.NoError(t, err)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Nil(t, list[0].Data)
}

func TestStore_Prune(t *testing.T) {
	s, now := setupTestStore(t)
	ctx := context.Background()

	old, err := s.Put(ctx, "old.pdf", 1, []byte("old"))
	require.NoError(t, err)
	*now = now.Add(2 * time.Hour)
	fresh, err := s.Put(ctx, "fresh.pdf", 1, []byte("fresh"))
	require.NoError(t, err)

	n, err := s.Prune(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	a, err := s.Put(ctx, "keep.pdf", 2, []byte("keep"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got.Data)
}

func TestJanitor(t *testing.T) {
	s, now := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "old.pdf", 1, []byte("old"))
	require.NoError(t, err)
	*now = now.Add(48 * time.Hour)

	j, err := NewJanitor(s, "@hourly", 24*time.Hour, zerolog.Nop())
	require.NoError(t, err)

	n, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	j.Start()
	assert.NoError(t, j.Stop(ctx))

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := NewJanitor(s, "every tuesday", time.Hour, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("zero retention", func(t *testing.T) {
		_, err := NewJanitor(s, "@daily", 0, zerolog.Nop())
		assert.Error(t, err)
	})
}
