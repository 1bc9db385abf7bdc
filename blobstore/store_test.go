package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreTests exercises the BlobStore contract against s.
func runStoreTests(t *testing.T, s BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutOpen", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "2020/batch-1", []byte("hello world")))

		b, err := s.Open(ctx, "2020/batch-1")
		require.NoError(t, err)
		defer b.Close()

		assert.Equal(t, int64(11), b.Size())

		buf := make([]byte, 5)
		n, err := b.ReadAt(ctx, buf, 6)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "world", string(buf))

		n, err = b.ReadAt(ctx, make([]byte, 10), 6)
		assert.Equal(t, 5, n)
		assert.ErrorIs(t, err, io.EOF)

		all, err := ReadAll(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(all))
	})

	t.Run("Create", func(t *testing.T) {
		w, err := s.Create(ctx, "2020/batch-2")
		require.NoError(t, err)

		_, err = w.Write([]byte("part1-"))
		require.NoError(t, err)
		_, err = w.Write([]byte("part2"))
		require.NoError(t, err)
		require.NoError(t, w.Sync())
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("late"))
		assert.ErrorIs(t, err, ErrClosed)

		b, err := s.Open(ctx, "2020/batch-2")
		require.NoError(t, err)
		defer b.Close()

		all, err := ReadAll(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, "part1-part2", string(all))
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "2021/batch-1", []byte("x")))

		names, err := s.List(ctx, "2020/")
		require.NoError(t, err)
		assert.Equal(t, []string{"2020/batch-1", "2020/batch-2"}, names)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "2021/batch-1"))
		require.NoError(t, s.Delete(ctx, "2021/batch-1"))

		_, err := s.Open(ctx, "2021/batch-1")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("Empty", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "empty", nil))

		b, err := s.Open(ctx, "empty")
		require.NoError(t, err)
		defer b.Close()

		assert.Equal(t, int64(0), b.Size())
		all, err := ReadAll(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.Open(cctx, "2020/batch-1")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestMemoryStorePutCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "a", data))
	data[0] = 'z'

	b, err := s.Open(ctx, "a")
	require.NoError(t, err)
	all, err := ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(all))
}

func TestLocalStore(t *testing.T) {
	runStoreTests(t, NewLocalStore(t.TempDir()))
}

func TestLocalStoreUncommittedCreate(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	w, err := s.Create(ctx, "pending")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)

	// Not visible before Close.
	_, err = s.Open(ctx, "pending")
	assert.ErrorIs(t, err, ErrNotFound)
	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())
	names, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"pending"}, names)
}

func TestLocalStoreListMissingRoot(t *testing.T) {
	s := NewLocalStore(t.TempDir() + "/missing")

	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
