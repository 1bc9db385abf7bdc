package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.vta")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestOpenAndRead(t *testing.T) {
	path := writeFile(t, []byte("hello archive"))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, int64(13), m.Size())
	assert.Equal(t, []byte("hello archive"), m.Bytes())
	require.NoError(t, m.Advise(AccessRandom))

	buf := make([]byte, 7)
	n, err := m.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "archive", string(buf))
}

func TestReadAtBounds(t *testing.T) {
	m, err := Open(writeFile(t, []byte("abc")))
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, 4)
	n, err := m.ReadAt(buf, 1)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = m.ReadAt(buf, 3)
	assert.ErrorIs(t, err, io.EOF)

	_, err = m.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestEmptyFile(t *testing.T) {
	m, err := Open(writeFile(t, nil))
	require.NoError(t, err)

	assert.Equal(t, int64(0), m.Size())
	assert.Empty(t, m.Bytes())
	require.NoError(t, m.Advise(AccessSequential))
	require.NoError(t, m.Close())
}

func TestClose(t *testing.T) {
	m, err := Open(writeFile(t, []byte("data")))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Nil(t, m.Bytes())
	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
