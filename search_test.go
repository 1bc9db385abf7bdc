package vectier

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/embed"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultIDs(rs []model.SearchResult) []model.ID {
	out := make([]model.ID, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestSearch2D(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 2)

	for id, v := range map[model.ID][]float32{1: {1, 0}, 2: {0, 1}, 3: {-1, 0}, 4: {0.9, 0.1}} {
		require.NoError(t, db.Insert(ctx, id, v, ts2024))
	}

	res, err := db.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{1, 4}, resultIDs(res.Results))
	assert.InDelta(t, 0, res.Results[0].Distance, 1e-6)
	assert.InDelta(t, 0.006, res.Results[1].Distance, 1e-3)
	assert.False(t, res.Partial)
	assert.NoError(t, res.Advisory())
}

func TestSearchArchivedTier(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 2)
	seed(t, db)

	report, err := db.MigrateTier(ctx, "2020")
	require.NoError(t, err)
	assert.Equal(t, model.TierID("2020"), report.Tier)
	assert.Equal(t, 2, report.MovedCount)
	assert.Empty(t, report.FailedIDs)

	rec, err := db.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.TierID("2020"), rec.Tier)

	res, err := db.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, model.ID(5), res.Results[0].ID)
	assert.Equal(t, model.TierID("2020"), res.Results[0].Tier)
}

func TestMigrationPreservesTopK(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 8, WithBatchSize(16), WithDefaultMetric(distance.MetricEuclidean))

	rng := testutil.NewRNG(21)
	vecs := rng.UnitVectors(200, 8)
	for i, v := range vecs {
		year := 2019 + i%4
		ts := time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.Insert(ctx, model.ID(i+1), v, ts))
	}

	queries := rng.UnitVectors(10, 8)
	before := make([][]model.ID, len(queries))
	for i, q := range queries {
		res, err := db.Search(ctx, q, 10)
		require.NoError(t, err)
		before[i] = resultIDs(res.Results)
	}

	for _, tr := range []model.TierID{"2019", "2020"} {
		_, err := db.MigrateTier(ctx, tr)
		require.NoError(t, err)
	}

	for i, q := range queries {
		res, err := db.Search(ctx, q, 10)
		require.NoError(t, err)
		assert.Equal(t, before[i], resultIDs(res.Results), "query %d", i)
	}
}

func TestSearchWithMetric(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 2)

	require.NoError(t, db.Insert(ctx, 1, []float32{10, 0}, ts2024))
	require.NoError(t, db.Insert(ctx, 2, []float32{0.9, 0.1}, ts2024))

	res, err := db.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{1}, resultIDs(res.Results))

	res, err = db.Search(ctx, []float32{1, 0}, 1, WithMetric(distance.MetricEuclidean))
	require.NoError(t, err)
	assert.Equal(t, []model.ID{2}, resultIDs(res.Results))
}

func TestSearchDeadline(t *testing.T) {
	db := newTestDB(t, 2)
	seed(t, db)

	res, err := db.Search(context.Background(), []float32{1, 0}, 2, WithDeadline(time.Now().Add(-time.Second)))
	require.NoError(t, err)
	assert.True(t, res.Partial)
}

func TestSearchDegradedIndex(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 2, WithDefaultMetric(distance.MetricEuclidean))

	for i := 1; i <= 300; i++ {
		require.NoError(t, db.Insert(ctx, model.ID(i), []float32{float32(i), 0}, ts2024))
	}
	for i := 1; i <= 150; i++ {
		require.NoError(t, db.Delete(ctx, model.ID(i)))
	}

	res, err := db.Search(ctx, []float32{0, 0}, 10)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, res.Partial)
	assert.ErrorIs(t, res.Advisory(), ErrIndexDegraded)
	assert.Equal(t, []model.ID{151, 152, 153, 154, 155, 156, 157, 158, 159, 160}, resultIDs(res.Results))
}

func TestSearchInvalidK(t *testing.T) {
	db := newTestDB(t, 2)

	_, err := db.Search(context.Background(), []float32{1, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestSearchText(t *testing.T) {
	ctx := context.Background()
	emb, err := embed.NewStatic(2, map[string][]float32{
		"east":  {1, 0},
		"north": {0, 1},
		"west":  {-1, 0},
	})
	require.NoError(t, err)

	db := newTestDB(t, 2, WithEmbedder(emb))

	require.NoError(t, db.InsertText(ctx, 1, "east", ts2024))
	require.NoError(t, db.InsertText(ctx, 2, "north", ts2024))

	res, err := db.SearchText(ctx, "west", 1)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	_, err = db.SearchText(ctx, "south", 1)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	err = db.InsertText(ctx, 3, "south", ts2024)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestSearchTextWithoutEmbedder(t *testing.T) {
	db := newTestDB(t, 2)

	_, err := db.SearchText(context.Background(), "east", 1)
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestSearchRecall(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 16, WithDefaultMetric(distance.MetricEuclidean))

	rng := testutil.NewRNG(7)
	recs := testutil.Records(rng.ClusteredVectors(1000, 16, 10, 0.2), 1, ts2024)
	for _, r := range recs {
		require.NoError(t, db.Insert(ctx, r.ID, r.Vector, r.CreatedAt))
	}

	var recall float64
	queries := make([][]float32, 0, 20)
	for i := range 20 {
		queries = append(queries, recs[i*47].Vector)
	}
	for _, q := range queries {
		res, err := db.Search(ctx, q, 10)
		require.NoError(t, err)

		approx := make([]model.Neighbor, len(res.Results))
		for i, r := range res.Results {
			approx[i] = model.Neighbor{ID: r.ID, Distance: r.Distance}
		}
		recall += testutil.ComputeRecall(testutil.BruteForce(recs, q, 10, distance.MetricEuclidean), approx)
	}

	assert.GreaterOrEqual(t, recall/float64(len(queries)), 0.9)
}
