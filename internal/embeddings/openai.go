package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/streed/snapnotes/internal/logger"
)

// Nomic models expect a task prefix on every input
// See: https://docs.nomic.ai/reference/endpoints/nomic-embed-text
const (
	nomicDocumentPrefix = "search_document: "
	nomicQueryPrefix    = "search_query: "
)

// dimensionProbe is embedded once during Load to discover the model's output size.
const dimensionProbe = "dimension probe"

// OpenAIEmbedding embeds text through any OpenAI-compatible embeddings
// endpoint, such as Ollama's /v1 API.
type OpenAIEmbedding struct {
	client *openai.Client
	model  string
	dims   int
	nomic  bool
}

func NewOpenAIEmbedding(endpoint, apiKey, model string, dims int) *OpenAIEmbedding {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = strings.TrimSuffix(endpoint, "/")
	}
	return &OpenAIEmbedding{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   dims,
		nomic:  strings.Contains(strings.ToLower(model), "nomic"),
	}
}

func (e *OpenAIEmbedding) Name() string { return "openai:" + e.model }

func (e *OpenAIEmbedding) Dimensions() int { return e.dims }

// Load checks that the model answers and adopts its dimensionality.
func (e *OpenAIEmbedding) Load(ctx context.Context) error {
	vec, err := e.embed(ctx, dimensionProbe)
	if err != nil {
		return err
	}
	if e.dims > 0 && e.dims != len(vec) {
		logger.Warn("Model %s returns %d dimensions, configuration says %d; using %d",
			e.model, len(vec), e.dims, len(vec))
	}
	e.dims = len(vec)
	return nil
}

func (e *OpenAIEmbedding) Forward(ctx context.Context, input string) ([]float32, error) {
	if e.nomic {
		input = nomicDocumentPrefix + input
	}
	return e.embed(ctx, input)
}

func (e *OpenAIEmbedding) ForwardQuery(ctx context.Context, input string) ([]float32, error) {
	if e.nomic {
		input = nomicQueryPrefix + input
	}
	return e.embed(ctx, input)
}

func (e *OpenAIEmbedding) embed(ctx context.Context, input string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{input},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings with %s: %w", e.model, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
