package embed

import (
	"context"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI embedding models.
const (
	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"
)

const (
	openAIMaxBatch   = 2048
	openAIDefaultDim = 1536
)

type openAIConfig struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAI embedder.
type OpenAIOption func(*openAIConfig)

// WithModel sets the embedding model (default: text-embedding-3-small).
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithDimension requests vectors of dim components (default: 1536).
func WithDimension(dim int) OpenAIOption {
	return func(c *openAIConfig) { c.dim = dim }
}

// WithBaseURL targets an OpenAI compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// OpenAI implements Embedder with the OpenAI embeddings API.
type OpenAI struct {
	client openai.Client
	model  string
	dim    int
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder. SDK retries are disabled.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	cfg := openAIConfig{
		model:      ModelTextEmbedding3Small,
		dim:        openAIDefaultDim,
		httpClient: http.DefaultClient,
	}
	for _, fn := range opts {
		fn(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		model:  cfg.model,
		dim:    cfg.dim,
	}
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += openAIMaxBatch {
		end := min(i+openAIMaxBatch, len(texts))
		vecs, err := o.request(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (o *OpenAI) Dimension() int { return o.dim }

// Model returns the model identifier.
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) request(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(o.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, unavailable("openai: %v", err)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, unavailable("openai: unexpected index %d for %d inputs", item.Index, len(texts))
		}
		v := make([]float32, len(item.Embedding))
		for i, x := range item.Embedding {
			v[i] = float32(x)
		}
		if len(v) != o.dim {
			return nil, unavailable("openai: got %d components, want %d", len(v), o.dim)
		}
		vecs[item.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, unavailable("openai: missing embedding %d", i)
		}
	}
	return vecs, nil
}
