// Package search answers text and image queries against the vector indices
// and ranks the matching notes.
package search

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/streed/snapnotes/internal/embeddings"
	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/logger"
	"github.com/streed/snapnotes/internal/metrics"
	"github.com/streed/snapnotes/internal/models"
	"github.com/streed/snapnotes/internal/vectorindex"
)

// Mode is the query/index modality pair of a search.
type Mode string

const (
	ModeTextToText   Mode = "text"
	ModeImageToImage Mode = "image"
	ModeTextToImage  Mode = "text-to-image"
)

// Request describes one search. Exactly one of Text and ImageURI must be
// set; CrossModal matches Text against images. Nil Candidates means every
// stored note. A non-nil Candidates set is ranked against the whole index so
// that candidates outside the global top K still receive a score.
type Request struct {
	Text       string
	ImageURI   string
	CrossModal bool
	Candidates []*models.Note
	Limit      int
}

// NoteLister supplies the default candidate set.
type NoteLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.Note, error)
}

type Gate interface {
	Check() error
}

type Config struct {
	Notes      NoteLister
	TextIndex  vectorindex.Index
	ImageIndex vectorindex.Index

	TextEmbedder  embeddings.Provider
	ImageEmbedder embeddings.Provider
	// JointTextEmbedder projects text into the image embedding space. Nil
	// disables text-to-image search.
	JointTextEmbedder embeddings.Provider

	Gate    Gate
	Metrics *metrics.Metrics
	TopK    int
}

type Orchestrator struct {
	cfg   Config
	group singleflight.Group
}

func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// SupportsCrossModal reports whether text-to-image search is available.
func (o *Orchestrator) SupportsCrossModal() bool {
	return o.cfg.JointTextEmbedder != nil
}

func (o *Orchestrator) Search(ctx context.Context, req Request) (results []*models.Note, err error) {
	mode, query, err := req.resolve()
	if err != nil {
		o.cfg.Metrics.SearchRequest("invalid", err)
		return nil, err
	}
	defer func() { o.cfg.Metrics.SearchRequest(string(mode), err) }()

	if o.cfg.Gate != nil {
		if err := o.cfg.Gate.Check(); err != nil {
			return nil, err
		}
	}

	provider, index := o.route(mode)
	if provider == nil || index == nil {
		return nil, fmt.Errorf("%s search: %w", mode, interrors.ErrUnsupportedModality)
	}

	vec, err := o.embed(ctx, mode, provider, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s query: %w", mode, err)
	}

	topK := o.cfg.TopK
	if topK > 0 && req.Limit > topK {
		topK = req.Limit
	}
	if req.Candidates != nil && topK > 0 && index.Len() > topK {
		topK = index.Len()
	}
	hits, err := index.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s index: %w", index.Name(), err)
	}

	candidates := req.Candidates
	if candidates == nil {
		candidates, err = o.cfg.Notes.List(ctx, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list candidate notes: %w", err)
		}
	}

	results = Aggregate(hits, candidates, req.Limit)
	logger.Debug("%s search matched %d vectors, returning %d notes", mode, len(hits), len(results))
	return results, nil
}

func (o *Orchestrator) SearchByText(ctx context.Context, query string, candidates []*models.Note, limit int) ([]*models.Note, error) {
	return o.Search(ctx, Request{Text: query, Candidates: candidates, Limit: limit})
}

func (o *Orchestrator) SearchByImage(ctx context.Context, imageURI string, candidates []*models.Note, limit int) ([]*models.Note, error) {
	return o.Search(ctx, Request{ImageURI: imageURI, Candidates: candidates, Limit: limit})
}

func (o *Orchestrator) SearchImagesByText(ctx context.Context, query string, candidates []*models.Note, limit int) ([]*models.Note, error) {
	return o.Search(ctx, Request{Text: query, CrossModal: true, Candidates: candidates, Limit: limit})
}

func (r Request) resolve() (Mode, string, error) {
	text := strings.TrimSpace(r.Text)
	image := strings.TrimSpace(r.ImageURI)
	switch {
	case text != "" && image != "", text == "" && image == "":
		return "", "", interrors.ErrInvalidQuery
	case image != "":
		if r.CrossModal {
			return "", "", fmt.Errorf("%w: cross-modal search takes a text query", interrors.ErrInvalidQuery)
		}
		return ModeImageToImage, image, nil
	case r.CrossModal:
		return ModeTextToImage, text, nil
	default:
		return ModeTextToText, text, nil
	}
}

func (o *Orchestrator) route(mode Mode) (embeddings.Provider, vectorindex.Index) {
	switch mode {
	case ModeTextToText:
		return o.cfg.TextEmbedder, o.cfg.TextIndex
	case ModeImageToImage:
		return o.cfg.ImageEmbedder, o.cfg.ImageIndex
	case ModeTextToImage:
		return o.cfg.JointTextEmbedder, o.cfg.ImageIndex
	}
	return nil, nil
}

// embed shares one inference between identical concurrent queries. The
// returned vector must not be modified.
func (o *Orchestrator) embed(ctx context.Context, mode Mode, p embeddings.Provider, query string) ([]float32, error) {
	v, err, shared := o.group.Do(string(mode)+"\x00"+query, func() (interface{}, error) {
		if mode == ModeImageToImage {
			return p.Forward(ctx, query)
		}
		return embeddings.ForwardQuery(ctx, p, query)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("Shared %s query embedding", mode)
	}
	return v.([]float32), nil
}
