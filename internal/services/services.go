// Package services builds the storage, vector indices, embedding providers
// and the sync and search services shared by every command.
package services

import (
	"context"
	"fmt"

	"github.com/streed/snapnotes/internal/config"
	"github.com/streed/snapnotes/internal/constants"
	"github.com/streed/snapnotes/internal/database"
	"github.com/streed/snapnotes/internal/embeddings"
	"github.com/streed/snapnotes/internal/filestore"
	"github.com/streed/snapnotes/internal/indexsync"
	"github.com/streed/snapnotes/internal/lifecycle"
	"github.com/streed/snapnotes/internal/logger"
	"github.com/streed/snapnotes/internal/metrics"
	"github.com/streed/snapnotes/internal/models"
	"github.com/streed/snapnotes/internal/search"
	"github.com/streed/snapnotes/internal/vectorindex"
)

// Services contains all the service dependencies
type Services struct {
	Config  *config.Config
	DB      *database.DB
	Notes   *models.NoteRepository
	Files   *filestore.Store
	Metrics *metrics.Metrics
	Gate    *lifecycle.Gate

	TextIndex  *vectorindex.SQLiteIndex
	ImageIndex *vectorindex.SQLiteIndex

	TextEmbedder      *embeddings.Managed
	ImageEmbedder     *embeddings.Managed
	JointTextEmbedder *embeddings.Managed

	Sync   *indexsync.Service
	Search *search.Orchestrator
}

// New builds the container. Indices and providers stay unloaded until Load.
func New(cfg *config.Config) (*Services, error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	set, err := embeddings.NewFromConfig(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Services{
		Config:  cfg,
		DB:      db,
		Notes:   models.NewNoteRepository(db.Conn()),
		Files:   filestore.New(cfg.GetNotesDirectory()),
		Metrics: metrics.New(),
		Gate:    lifecycle.NewGate(),
	}

	s.TextEmbedder = s.managed(set.Text)
	s.ImageEmbedder = s.managed(set.Image)
	if set.JointText != nil {
		s.JointTextEmbedder = s.managed(set.JointText)
	}

	s.TextIndex = vectorindex.NewSQLiteIndex(db.Conn(), constants.TextIndexName, s.TextEmbedder.Dimensions(),
		vectorindex.WithDefaultTopK(cfg.SearchTopK),
		vectorindex.WithDimensionsFrom(s.TextEmbedder.Dimensions),
	)
	s.ImageIndex = vectorindex.NewSQLiteIndex(db.Conn(), constants.ImageIndexName, s.ImageEmbedder.Dimensions(),
		vectorindex.WithDefaultTopK(cfg.SearchTopK),
		vectorindex.WithDimensionsFrom(s.ImageEmbedder.Dimensions),
	)

	// providers first: indices take their dimensions from them
	s.Gate.Register("text embedding provider "+s.TextEmbedder.Name(), s.TextEmbedder)
	s.Gate.Register("image embedding provider "+s.ImageEmbedder.Name(), s.ImageEmbedder)
	if s.JointTextEmbedder != nil {
		s.Gate.Register("joint text embedding provider "+s.JointTextEmbedder.Name(), s.JointTextEmbedder)
	}
	s.Gate.Register("text index", s.TextIndex)
	s.Gate.Register("image index", s.ImageIndex)

	s.Sync = indexsync.New(indexsync.Config{
		Notes:         s.Notes,
		TextIndex:     s.TextIndex,
		ImageIndex:    s.ImageIndex,
		TextEmbedder:  s.TextEmbedder,
		ImageEmbedder: s.ImageEmbedder,
		Files:         s.Files,
		Queue:         indexsync.NewQueue(db.Conn()),
		Gate:          s.Gate,
		Metrics:       s.Metrics,
	})

	searchCfg := search.Config{
		Notes:         s.Notes,
		TextIndex:     s.TextIndex,
		ImageIndex:    s.ImageIndex,
		TextEmbedder:  s.TextEmbedder,
		ImageEmbedder: s.ImageEmbedder,
		Gate:          s.Gate,
		Metrics:       s.Metrics,
		TopK:          cfg.SearchTopK,
	}
	// keep the interface nil, not a nil *Managed, when unsupported
	if s.JointTextEmbedder != nil {
		searchCfg.JointTextEmbedder = s.JointTextEmbedder
	}
	s.Search = search.NewOrchestrator(searchCfg)

	return s, nil
}

// Open builds the container and loads it.
func Open(ctx context.Context, cfg *config.Config) (*Services, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Load loads every provider and index. Sync and search operations fail with
// ErrNotReady until it succeeds.
func (s *Services) Load(ctx context.Context) error {
	if err := s.Gate.Load(ctx); err != nil {
		return err
	}
	s.Metrics.SetIndexRecords(s.TextIndex.Name(), s.TextIndex.Len())
	s.Metrics.SetIndexRecords(s.ImageIndex.Name(), s.ImageIndex.Len())
	logger.Debug("Loaded %d text and %d image vectors", s.TextIndex.Len(), s.ImageIndex.Len())
	return nil
}

func (s *Services) IndexStats() []vectorindex.Stats {
	return []vectorindex.Stats{s.TextIndex.Stats(), s.ImageIndex.Stats()}
}

// Close cleans up any resources
func (s *Services) Close() error {
	return s.DB.Close()
}

func (s *Services) managed(p embeddings.Provider) *embeddings.Managed {
	return embeddings.NewManaged(p,
		embeddings.WithRateLimit(s.Config.InferenceRatePerSecond),
		embeddings.WithMetrics(s.Metrics),
	)
}
