package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/snapnotes/internal/database"
	"github.com/streed/snapnotes/internal/embeddings"
	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/filestore"
	"github.com/streed/snapnotes/internal/indexsync"
	"github.com/streed/snapnotes/internal/lifecycle"
	"github.com/streed/snapnotes/internal/metrics"
	"github.com/streed/snapnotes/internal/models"
	"github.com/streed/snapnotes/internal/vectorindex"
)

// tableProvider returns fixed vectors for known inputs.
type tableProvider struct {
	name    string
	vectors map[string][]float32
}

func (p *tableProvider) Name() string                   { return p.name }
func (p *tableProvider) Dimensions() int                { return 3 }
func (p *tableProvider) Load(ctx context.Context) error { return nil }

func (p *tableProvider) Forward(ctx context.Context, input string) ([]float32, error) {
	v, ok := p.vectors[input]
	if !ok {
		return nil, interrors.Embedding("embed", fmt.Errorf("no vector for %q", input))
	}
	return v, nil
}

var (
	imageVectors = &tableProvider{name: "table-image", vectors: map[string][]float32{
		"/img/sunset.jpg": {1, 0, 0},
		"/img/forest.jpg": {0, 1, 0},
		"/img/ocean.jpg":  {0, 0, 1},
		"/img/dusk.jpg":   {0.9, 0.2, 0},
	}}
	jointText = &tableProvider{name: "table-joint", vectors: map[string][]float32{
		"red sky": {1, 0.1, 0},
		"trees":   {0.1, 1, 0.2},
	}}
)

type fixture struct {
	orch    *Orchestrator
	sync    *indexsync.Service
	gate    *lifecycle.Gate
	metrics *metrics.Metrics
	cfg     Config
	notes   map[string]*models.Note
}

func newFixture(t *testing.T, load bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(context.Background(), filepath.Join(dir, "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := models.NewNoteRepository(db.Conn())
	textIndex := vectorindex.NewSQLiteIndex(db.Conn(), "text", 4096)
	imageIndex := vectorindex.NewSQLiteIndex(db.Conn(), "image", 3)
	text := embeddings.NewHashEmbedding(4096)

	gate := lifecycle.NewGate()
	gate.Register("text index", textIndex)
	gate.Register("image index", imageIndex)
	gate.Register("text provider", text)

	f := &fixture{gate: gate, metrics: metrics.New(), notes: map[string]*models.Note{}}
	f.sync = indexsync.New(indexsync.Config{
		Notes:         repo,
		TextIndex:     textIndex,
		ImageIndex:    imageIndex,
		TextEmbedder:  text,
		ImageEmbedder: imageVectors,
		Files:         filestore.New(filepath.Join(dir, "notes")),
		Queue:         indexsync.NewQueue(db.Conn()),
		Gate:          gate,
	})
	f.cfg = Config{
		Notes:             repo,
		TextIndex:         textIndex,
		ImageIndex:        imageIndex,
		TextEmbedder:      text,
		ImageEmbedder:     imageVectors,
		JointTextEmbedder: jointText,
		Gate:              gate,
		Metrics:           f.metrics,
		TopK:              25,
	}
	f.orch = NewOrchestrator(f.cfg)
	if load {
		require.NoError(t, gate.Load(context.Background()))
	}
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, data := range []models.NoteData{
		{Title: "Grocery list", Content: "milk eggs bread butter"},
		{Title: "Taxes", Content: "receipts deductions forms"},
		{Title: "Evening walk", Content: "photos from the pier", ImageURIs: []string{"/img/sunset.jpg"}},
		{Title: "Hike", Content: "trail notes", ImageURIs: []string{"/img/forest.jpg", "/img/ocean.jpg"}},
	} {
		note, err := f.sync.CreateNote(ctx, data)
		require.NoError(t, err)
		f.notes[note.Title] = note
	}
}

func titles(ns []*models.Note) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Title
	}
	return out
}

func TestTextToTextRanksByContent(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t)

	candidates := []*models.Note{f.notes["Grocery list"], f.notes["Taxes"]}
	results, err := f.orch.SearchByText(context.Background(), "bread and milk", candidates, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "Grocery list", results[0].Title)
	require.NotNil(t, results[0].Similarity)
	assert.Greater(t, *results[0].Similarity, 0.3)
	for _, r := range results {
		assert.Contains(t, []string{"Grocery list", "Taxes"}, r.Title)
	}
	assert.Nil(t, candidates[0].Similarity, "candidates are not modified")
}

func TestTextToTextDefaultsToAllNotes(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t)
	ctx := context.Background()

	results, err := f.orch.Search(ctx, Request{Text: "  trail hike  "})
	require.NoError(t, err)
	require.Len(t, results, 3, "default result limit")
	assert.Equal(t, "Hike", results[0].Title)

	results, err = f.orch.Search(ctx, Request{Text: "trail hike", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestImageToImage(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t)

	results, err := f.orch.SearchByImage(context.Background(), "/img/dusk.jpg", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Evening walk", "Hike"}, titles(results))
	assert.InDelta(t, 0.976, *results[0].Similarity, 0.001)
}

func TestCandidatesOutsideGlobalTopK(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t)
	cfg := f.cfg
	cfg.TopK = 1
	orch := NewOrchestrator(cfg)
	ctx := context.Background()

	results, err := orch.SearchByImage(ctx, "/img/dusk.jpg", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Evening walk"}, titles(results))

	// the nearest vector belongs to a note outside the candidate set
	results, err = orch.SearchByImage(ctx, "/img/dusk.jpg", []*models.Note{f.notes["Hike"]}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hike"}, titles(results))
	require.NotNil(t, results[0].Similarity)
	assert.Greater(t, *results[0].Similarity, 0.0)
}

func TestTextToImage(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t)

	results, err := f.orch.SearchImagesByText(context.Background(), "trees", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hike"}, titles(results))

	results, err = f.orch.Search(context.Background(), Request{Text: "red sky", CrossModal: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Evening walk", results[0].Title)
}

func TestTextToImageUnsupported(t *testing.T) {
	f := newFixture(t, true)
	cfg := f.cfg
	cfg.JointTextEmbedder = nil
	orch := NewOrchestrator(cfg)

	assert.False(t, orch.SupportsCrossModal())
	assert.True(t, f.orch.SupportsCrossModal())
	_, err := orch.SearchImagesByText(context.Background(), "trees", nil, 3)
	assert.True(t, errors.Is(err, interrors.ErrUnsupportedModality))
}

func TestInvalidQuery(t *testing.T) {
	f := newFixture(t, true)

	tests := []struct {
		name string
		req  Request
	}{
		{"neither", Request{}},
		{"whitespace only", Request{Text: "   ", ImageURI: "\t"}},
		{"both", Request{Text: "cats", ImageURI: "/img/cat.jpg"}},
		{"cross-modal image", Request{ImageURI: "/img/cat.jpg", CrossModal: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Search(context.Background(), tt.req)
			assert.True(t, errors.Is(err, interrors.ErrInvalidQuery))
		})
	}
}

func TestSearchBeforeLoad(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orch.SearchByText(context.Background(), "anything", nil, 3)
	assert.True(t, errors.Is(err, interrors.ErrNotReady))

	require.NoError(t, f.gate.Load(context.Background()))
	results, err := f.orch.SearchByText(context.Background(), "anything", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestUnknownImageFails(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.orch.SearchByImage(context.Background(), "/img/unknown.jpg", nil, 3)
	assert.True(t, errors.Is(err, interrors.ErrEmbedding))
}

func TestConcurrentIdenticalSearches(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := f.orch.SearchByText(context.Background(), "milk", nil, 1)
			if assert.NoError(t, err) && assert.Len(t, results, 1) {
				assert.Equal(t, "Grocery list", results[0].Title)
			}
		}()
	}
	wg.Wait()
}

func TestSearchesAreCounted(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.orch.SearchByText(ctx, "milk", nil, 3)
	require.NoError(t, err)
	_, _ = f.orch.Search(ctx, Request{})

	samples, err := f.metrics.Snapshot()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, s := range samples {
		got[s.Name+"{"+s.Labels+"}"] = s.Value
	}
	assert.Equal(t, 1.0, got["snapnotes_search_requests_total{mode=text,outcome=ok}"])
	assert.Equal(t, 1.0, got["snapnotes_search_requests_total{mode=invalid,outcome=error}"])
}
