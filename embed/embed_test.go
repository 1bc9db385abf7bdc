package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/vectier/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s, err := NewStatic(2, map[string][]float32{"a": {1, 0}, "b": {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Dimension())

	vecs, err := s.Embed(ctx, []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 0}}, vecs)

	_, err = s.Embed(ctx, []string{"c"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Embed(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = NewStatic(3, map[string][]float32{"a": {1, 0}})
	assert.Error(t, err)
}

func TestHashing(t *testing.T) {
	ctx := context.Background()
	h := NewHashing(16)

	vecs, err := h.Embed(ctx, []string{"hello", "world", "hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
	assert.InDelta(t, 1, distance.Norm(vecs[0]), 1e-5)

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// fakeOpenAI answers embedding requests with one-hot vectors. A non-zero dim
// overrides the requested dimension.
func fakeOpenAI(t *testing.T, status, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
			return
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if dim > 0 {
			req.Dimensions = dim
		}

		data := make([]map[string]any, len(req.Input))
		// Answer in reverse order to exercise index handling.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			vec := make([]float64, req.Dimensions)
			vec[j%req.Dimensions] = 1
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOpenAI(t, http.StatusOK, 0, &calls)

	o := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(4), WithModel(ModelTextEmbedding3Large))
	assert.Equal(t, 4, o.Dimension())
	assert.Equal(t, ModelTextEmbedding3Large, o.Model())

	vecs, err := o.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}, vecs)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIUnavailableNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOpenAI(t, http.StatusServiceUnavailable, 0, &calls)

	o := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(4))
	_, err := o.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIDimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOpenAI(t, http.StatusOK, 8, &calls)

	o := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(4))
	_, err := o.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
