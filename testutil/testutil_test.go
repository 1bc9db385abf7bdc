package testutil

import (
	"testing"
	"time"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))

	for _, vec := range v {
		var sum float32
		for _, val := range vec {
			sum += val * val
		}
		assert.InDelta(t, float32(1.0), sum, 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.ClusteredVectors(100, 32, 5, 0.1)

	assert.Equal(t, 100, len(v))
	assert.Equal(t, 32, len(v[0]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)

	rng.Reset()
	v2 := rng.UniformVectors(1, 10)

	assert.Equal(t, v1, v2)
}

func TestRecords(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := Records([][]float32{{1}, {2}}, 10, start)

	require.Len(t, recs, 2)
	assert.Equal(t, model.ID(10), recs[0].ID)
	assert.Equal(t, model.ID(11), recs[1].ID)
	assert.Equal(t, start.Add(time.Minute), recs[1].CreatedAt)
}

func TestBruteForceTieBreak(t *testing.T) {
	recs := []model.Record{
		{ID: 3, Vector: []float32{1, 0}},
		{ID: 1, Vector: []float32{1, 0}},
		{ID: 2, Vector: []float32{0, 1}},
	}

	got := BruteForce(recs, []float32{1, 0}, 2, distance.MetricEuclidean)
	assert.Equal(t, []model.ID{1, 3}, IDs(got))
}

func TestComputeRecall(t *testing.T) {
	truth := []model.Neighbor{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	approx := []model.Neighbor{{ID: 1}, {ID: 3}, {ID: 9}, {ID: 4}}

	assert.InDelta(t, 0.75, ComputeRecall(truth, approx), 1e-9)
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))
}
