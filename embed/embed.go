// Package embed defines the boundary to embedding providers.
//
// The engine treats an Embedder as an opaque producer of fixed-dimension
// vectors. Every provider failure is reported as ErrUnavailable and is never
// retried here; retry policy belongs to the caller.
package embed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrUnavailable wraps every failure to produce an embedding.
	ErrUnavailable = errors.New("embed: embedding unavailable")
	// ErrEmptyInput is returned when no texts are given.
	ErrEmptyInput = errors.New("embed: empty input")
)

// Embedder turns texts into vectors of Dimension() components.
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// Static serves embeddings from a fixed table.
type Static struct {
	dim     int
	vectors map[string][]float32
}

var _ Embedder = (*Static)(nil)

// NewStatic creates an embedder that knows exactly the texts in vectors.
func NewStatic(dim int, vectors map[string][]float32) (*Static, error) {
	for text, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embed: vector for %q has %d components, want %d", text, len(v), dim)
		}
	}
	return &Static{dim: dim, vectors: vectors}, nil
}

func (s *Static) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			return nil, unavailable("no embedding for %q", text)
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

func (s *Static) Dimension() int { return s.dim }

// Hashing derives deterministic unit vectors from text hashes. It carries no
// semantics and is meant for demos and load tests without a provider.
type Hashing struct {
	dim int
}

var _ Embedder = Hashing{}

// NewHashing creates a hashing embedder of dimension dim.
func NewHashing(dim int) Hashing {
	return Hashing{dim: dim}
}

func (h Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h Hashing) vector(text string) []float32 {
	v := make([]float32, h.dim)
	var seed [8]byte
	var norm float64
	for j := range v {
		binary.LittleEndian.PutUint64(seed[:], uint64(j))
		d := xxhash.New()
		_, _ = d.Write(seed[:])
		_, _ = d.WriteString(text)
		// Map the hash to [-1, 1).
		x := float64(d.Sum64()>>11)/float64(1<<53)*2 - 1
		v[j] = float32(x)
		norm += x * x
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for j := range v {
			v[j] = float32(float64(v[j]) * inv)
		}
	}
	return v
}

func (h Hashing) Dimension() int { return h.dim }
