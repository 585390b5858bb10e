package embeddings

import (
	"fmt"

	"github.com/streed/snapnotes/internal/config"
	interrors "github.com/streed/snapnotes/internal/errors"
)

// Set holds the providers configured for each search mode. JointText is nil
// when the image space has no text encoder.
type Set struct {
	Text      Provider
	Image     Provider
	JointText Provider
}

func NewFromConfig(cfg *config.Config) (Set, error) {
	var set Set

	switch cfg.TextEmbeddingProvider {
	case config.TextProviderOpenAI:
		set.Text = NewOpenAIEmbedding(cfg.TextEmbeddingEndpoint, cfg.TextEmbeddingAPIKey,
			cfg.TextEmbeddingModel, cfg.TextVectorDimensions)
	case config.TextProviderHash:
		set.Text = NewHashEmbedding(cfg.TextVectorDimensions)
	default:
		return Set{}, fmt.Errorf("%w: text provider %q", interrors.ErrUnsupportedModality, cfg.TextEmbeddingProvider)
	}

	switch cfg.ImageEmbeddingProvider {
	case config.ImageProviderClip:
		clip := NewClipEmbedding(cfg.ImageEmbeddingEndpoint, cfg.ImageEmbeddingAPIKey,
			cfg.ImageEmbeddingModel, cfg.ImageVectorDimensions)
		set.Image = clip.Images()
		set.JointText = clip.Texts()
	case config.ImageProviderThumbnail:
		set.Image = NewThumbnailEmbedding()
	default:
		return Set{}, fmt.Errorf("%w: image provider %q", interrors.ErrUnsupportedModality, cfg.ImageEmbeddingProvider)
	}

	return set, nil
}
