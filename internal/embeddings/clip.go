package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/streed/snapnotes/internal/constants"
)

// ClipEmbedding talks to an OpenAI-compatible embeddings endpoint serving a
// CLIP model that accepts both text and base64 image data URIs. Images and
// text land in one joint space, so a text query can be matched against the
// image index.
type ClipEmbedding struct {
	client *openai.Client
	model  string

	mu     sync.Mutex
	dims   int
	loaded bool
}

func NewClipEmbedding(endpoint, apiKey, model string, dims int) *ClipEmbedding {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = strings.TrimSuffix(endpoint, "/")
	}
	return &ClipEmbedding{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   dims,
	}
}

// Images returns the image-modality view of the model.
func (c *ClipEmbedding) Images() Provider { return &clipImages{c} }

// Texts returns the text view projecting into the image space.
func (c *ClipEmbedding) Texts() Provider { return &clipTexts{c} }

func (c *ClipEmbedding) dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dims
}

func (c *ClipEmbedding) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}
	vec, err := c.embed(ctx, dimensionProbe)
	if err != nil {
		return err
	}
	c.dims = len(vec)
	c.loaded = true
	return nil
}

func (c *ClipEmbedding) embed(ctx context.Context, input string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{input},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings with %s: %w", c.model, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	vec := resp.Data[0].Embedding
	normalize(vec)
	return vec, nil
}

type clipImages struct{ c *ClipEmbedding }

func (p *clipImages) Name() string                   { return "clip-image:" + p.c.model }
func (p *clipImages) Dimensions() int                { return p.c.dimensions() }
func (p *clipImages) Load(ctx context.Context) error { return p.c.load(ctx) }

func (p *clipImages) Forward(ctx context.Context, ref string) ([]float32, error) {
	img, err := openImage(ref)
	if err != nil {
		return nil, err
	}
	uri, err := jpegDataURI(img, constants.ClipImageSide)
	if err != nil {
		return nil, err
	}
	return p.c.embed(ctx, uri)
}

type clipTexts struct{ c *ClipEmbedding }

func (p *clipTexts) Name() string                   { return "clip-text:" + p.c.model }
func (p *clipTexts) Dimensions() int                { return p.c.dimensions() }
func (p *clipTexts) Load(ctx context.Context) error { return p.c.load(ctx) }

func (p *clipTexts) Forward(ctx context.Context, text string) ([]float32, error) {
	return p.c.embed(ctx, text)
}
