// Package embeddings turns note text and images into fixed-length vectors.
package embeddings

import (
	"context"
)

// Provider computes embeddings for one modality. Input is text for text
// providers and a local image path for image providers. Load must complete
// before the first Forward.
type Provider interface {
	Name() string
	Dimensions() int
	Load(ctx context.Context) error
	Forward(ctx context.Context, input string) ([]float32, error)
}

// QueryProvider is implemented by providers that embed search queries
// differently from stored documents.
type QueryProvider interface {
	ForwardQuery(ctx context.Context, input string) ([]float32, error)
}

// ForwardQuery embeds input as a search query when p distinguishes queries,
// and as a document otherwise.
func ForwardQuery(ctx context.Context, p Provider, input string) ([]float32, error) {
	if q, ok := p.(QueryProvider); ok {
		return q.ForwardQuery(ctx, input)
	}
	return p.Forward(ctx, input)
}
