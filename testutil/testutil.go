package testutil

import (
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/internal/simd"
	"github.com/hupe1980/vectier/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
// Uses a Gaussian distribution for uniform coverage of the sphere.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		r.fillUnitLocked(vec)
		vectors[i] = vec
	}

	return vectors
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float32, dimensions)
	r.fillUnitLocked(vec)
	return vec
}

func (r *RNG) fillUnitLocked(vec []float32) {
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		norm = 1
	}
	simd.ScaleInPlace(vec, float32(1.0/math.Sqrt(norm)))
}

// ClusteredVectors generates vectors clustered around random centroids.
// Useful for testing ANN index quality on non-uniform data.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)

	for i := range num {
		centroid := centroids[i%clusters]
		vec := data[i*dim : (i+1)*dim]
		for j := range dim {
			vec[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
		vectors[i] = vec
	}

	return vectors
}

// Records wraps vectors into records with consecutive ids starting at firstID.
// CreatedAt advances by one minute per record starting at start.
func Records(vectors [][]float32, firstID model.ID, start time.Time) []model.Record {
	out := make([]model.Record, len(vectors))
	for i, v := range vectors {
		out[i] = model.Record{
			ID:        firstID + model.ID(i),
			Vector:    v,
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

// BruteForce returns the exact k nearest records to query under metric,
// ordered by ascending distance with ties broken by ascending id.
func BruteForce(records []model.Record, query []float32, k int, metric distance.Metric) []model.Neighbor {
	fn := distance.Func(metric)

	out := make([]model.Neighbor, len(records))
	for i, r := range records {
		out[i] = model.Neighbor{ID: r.ID, Distance: fn(query, r.Vector)}
	}
	slices.SortFunc(out, model.CompareNeighbors)

	if len(out) > k {
		out = out[:k]
	}
	return out
}

// ComputeRecall computes recall@k by comparing approximate results against ground truth.
func ComputeRecall(groundTruth, approximate []model.Neighbor) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	k := min(len(approximate), len(groundTruth))

	truthSet := make(map[model.ID]struct{}, k)
	for i := range k {
		truthSet[groundTruth[i].ID] = struct{}{}
	}

	hits := 0
	for _, r := range approximate[:k] {
		if _, ok := truthSet[r.ID]; ok {
			hits++
		}
	}

	return float64(hits) / float64(k)
}

// IDs extracts the ids of ns in order.
func IDs(ns []model.Neighbor) []model.ID {
	out := make([]model.ID, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}
