package catalog_test

import (
	"testing"

	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/catalog/catalogtest"
	"github.com/hupe1980/vectier/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	catalogtest.Run(t, func(*testing.T) catalog.Catalog { return catalog.NewMemory() })
}

func TestEncodeDecode(t *testing.T) {
	e := catalogtest.Entry("2020", "2020/b1", 5, 6, 1<<40)
	e.Version = 3

	data, err := catalog.Encode(e)
	require.NoError(t, err)

	got, err := catalog.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, e.Batch, got.Batch)
	assert.Equal(t, e.Version, got.Version)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.Visible.Equals(e.Visible))

	_, err = catalog.Decode([]byte{0xc1})
	assert.Error(t, err)
}

func TestHideIDs(t *testing.T) {
	e := catalogtest.Entry("2020", "b", 1, 2, 3)
	catalog.HideIDs(&e, []model.ID{2})

	assert.Equal(t, uint64(1), e.Version)
	assert.Equal(t, 2, e.VisibleCount())
	assert.False(t, e.Contains(2))

	var empty catalog.Entry
	catalog.HideIDs(&empty, []model.ID{1})
	assert.Equal(t, 0, empty.VisibleCount())
}
