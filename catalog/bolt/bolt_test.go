package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/catalog/catalogtest"
	"github.com/hupe1980/vectier/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	catalogtest.Run(t, func(t *testing.T) catalog.Catalog {
		c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func TestCatalogPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, catalogtest.Entry("2020", "2020/b1", 5, 6)))
	require.NoError(t, c.Hide(ctx, "2020", "2020/b1", []model.ID{6}))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()

	entries, err := c.Entries(ctx, "2020")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Contains(5))
	assert.False(t, entries[0].Contains(6))
	assert.Equal(t, uint64(1), entries[0].Version)
}
