package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/snapnotes/internal/config"
	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/metrics"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestHashEmbedding(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedding(4096)
	require.NoError(t, h.Load(ctx))

	grocery, err := h.Forward(ctx, "Grocery buy milk and eggs")
	require.NoError(t, err)
	assert.Len(t, grocery, 4096)
	assert.InDelta(t, 1.0, dot(grocery, grocery), 1e-5, "vectors are unit length")

	again, err := h.Forward(ctx, "grocery BUY milk, and eggs!")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(grocery, again), 1e-5, "case and punctuation are ignored")

	milk, err := h.Forward(ctx, "milk")
	require.NoError(t, err)
	assert.Greater(t, dot(grocery, milk), 0.3)

	empty, err := h.Forward(ctx, "  ")
	require.NoError(t, err)
	assert.Zero(t, dot(empty, empty))
}

func TestHashEmbeddingRequiresDimensions(t *testing.T) {
	assert.Error(t, NewHashEmbedding(0).Load(context.Background()))
}

// fakeProvider counts calls and fails on demand.
type fakeProvider struct {
	mu       sync.Mutex
	dims     int
	loadErr  error
	fwdErr   error
	loads    int
	forwards int
	queries  int
	inLoad   bool
	overlaps int
}

func (f *fakeProvider) Name() string    { return "fake" }
func (f *fakeProvider) Dimensions() int { return f.dims }

func (f *fakeProvider) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loads++
	f.inLoad = true
	f.mu.Unlock()

	f.mu.Lock()
	f.inLoad = false
	f.mu.Unlock()
	return f.loadErr
}

func (f *fakeProvider) Forward(ctx context.Context, input string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inLoad {
		f.overlaps++
	}
	f.forwards++
	if f.fwdErr != nil {
		return nil, f.fwdErr
	}
	return make([]float32, f.dims), nil
}

func (f *fakeProvider) ForwardQuery(ctx context.Context, input string) ([]float32, error) {
	f.mu.Lock()
	f.queries++
	f.mu.Unlock()
	return make([]float32, f.dims), nil
}

func TestManagedNotReadyBeforeLoad(t *testing.T) {
	m := NewManaged(&fakeProvider{dims: 2})

	_, err := m.Forward(context.Background(), "x")
	assert.True(t, errors.Is(err, interrors.ErrNotReady))
	assert.False(t, m.Ready())
}

func TestManagedLoadIsIdempotent(t *testing.T) {
	inner := &fakeProvider{dims: 2}
	m := NewManaged(inner)
	ctx := context.Background()

	require.NoError(t, m.Load(ctx))
	require.NoError(t, m.Load(ctx))
	assert.Equal(t, 1, inner.loads)
	assert.True(t, m.Ready())

	vec, err := m.Forward(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestManagedLoadFailure(t *testing.T) {
	inner := &fakeProvider{dims: 2, loadErr: errors.New("model missing")}
	m := NewManaged(inner)

	err := m.Load(context.Background())
	assert.True(t, errors.Is(err, interrors.ErrEmbedding))
	assert.False(t, m.Ready())
}

func TestManagedClassifiesErrors(t *testing.T) {
	ctx := context.Background()

	inner := &fakeProvider{dims: 2, fwdErr: errors.New("server exploded")}
	m := NewManaged(inner)
	require.NoError(t, m.Load(ctx))
	_, err := m.Forward(ctx, "x")
	assert.True(t, errors.Is(err, interrors.ErrEmbedding))

	inner.fwdErr = interrors.Permission("open image", os.ErrPermission)
	_, err = m.Forward(ctx, "x")
	assert.True(t, errors.Is(err, interrors.ErrPermission))
	assert.False(t, errors.Is(err, interrors.ErrEmbedding))
}

func TestManagedForwardQueryRoutesToQueryEncoder(t *testing.T) {
	inner := &fakeProvider{dims: 3}
	m := NewManaged(inner)
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))

	_, err := m.ForwardQuery(ctx, "q")
	require.NoError(t, err)
	_, err = ForwardQuery(ctx, m, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.queries)
	assert.Zero(t, inner.forwards)
}

func TestManagedRecordsMetrics(t *testing.T) {
	mt := metrics.New()
	m := NewManaged(&fakeProvider{dims: 1}, WithMetrics(mt), WithRateLimit(1000))
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))

	for i := 0; i < 3; i++ {
		_, err := m.Forward(ctx, "x")
		require.NoError(t, err)
	}

	samples, err := mt.Snapshot()
	require.NoError(t, err)
	var count float64
	for _, s := range samples {
		if s.Name == "snapnotes_embedding_inference_seconds" && strings.Contains(s.Labels, "provider=fake") {
			count += s.Value
		}
	}
	assert.Equal(t, 3.0, count)
}

func TestManagedConcurrentForward(t *testing.T) {
	inner := &fakeProvider{dims: 4}
	m := NewManaged(inner)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Forward(ctx, "x")
			m.Load(ctx)
		}()
	}
	wg.Wait()
	assert.Zero(t, inner.overlaps)
}

// embeddingServer mimics the OpenAI embeddings endpoint. It answers with a
// vector derived from the input length and records what it received.
type embeddingServer struct {
	mu     sync.Mutex
	dims   int
	inputs []string
}

func (s *embeddingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.inputs = append(s.inputs, req.Input...)
		s.mu.Unlock()

		data := make([]map[string]interface{}, len(req.Input))
		for i, in := range req.Input {
			vec := make([]float32, s.dims)
			vec[len(in)%s.dims] = 2
			data[i] = map[string]interface{}{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}
}

func (s *embeddingServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

func TestOpenAIEmbeddingNomicPrefixes(t *testing.T) {
	srv := &embeddingServer{dims: 5}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	ctx := context.Background()
	e := NewOpenAIEmbedding(ts.URL+"/v1", "", "nomic-embed-text", 768)
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, 5, e.Dimensions(), "Load adopts the model's dimensionality")

	_, err := e.Forward(ctx, "note body")
	require.NoError(t, err)
	_, err = e.ForwardQuery(ctx, "what")
	require.NoError(t, err)

	inputs := srv.received()
	require.Len(t, inputs, 3)
	assert.Equal(t, "search_document: note body", inputs[1])
	assert.Equal(t, "search_query: what", inputs[2])
}

func TestOpenAIEmbeddingPlainModel(t *testing.T) {
	srv := &embeddingServer{dims: 3}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	ctx := context.Background()
	e := NewOpenAIEmbedding(ts.URL+"/v1/", "key", "mxbai-embed-large", 0)
	require.NoError(t, e.Load(ctx))

	_, err := e.Forward(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", srv.received()[1])
}

func TestOpenAIEmbeddingServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer ts.Close()

	m := NewManaged(NewOpenAIEmbedding(ts.URL+"/v1", "", "missing", 0))
	err := m.Load(context.Background())
	assert.True(t, errors.Is(err, interrors.ErrEmbedding))
}

func writeImage(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(imaging.New(32, 24, c), path))
	return path
}

func TestThumbnailEmbedding(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	red := writeImage(t, dir, "red.png", color.NRGBA{R: 255, A: 255})
	red2 := writeImage(t, dir, "red2.jpg", color.NRGBA{R: 250, G: 5, A: 255})
	blue := writeImage(t, dir, "blue.png", color.NRGBA{B: 255, A: 255})

	th := NewThumbnailEmbedding()
	require.NoError(t, th.Load(ctx))
	assert.Equal(t, 192, th.Dimensions())

	vr, err := th.Forward(ctx, red)
	require.NoError(t, err)
	vr2, err := th.Forward(ctx, "file://"+red2)
	require.NoError(t, err)
	vb, err := th.Forward(ctx, blue)
	require.NoError(t, err)

	assert.Len(t, vr, 192)
	assert.Greater(t, dot(vr, vr2), 0.95)
	assert.Less(t, dot(vr, vb), 0.0)
}

func TestThumbnailEmbeddingFlatImages(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gray := writeImage(t, dir, "gray.png", color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	white := writeImage(t, dir, "white.png", color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	black := writeImage(t, dir, "black.png", color.NRGBA{A: 255})

	th := NewManaged(NewThumbnailEmbedding())
	require.NoError(t, th.Load(ctx))

	vg, err := th.Forward(ctx, gray)
	require.NoError(t, err)
	assert.Len(t, vg, 192)
	assert.InDelta(t, 1.0, dot(vg, vg), 1e-5)

	vw, err := th.Forward(ctx, white)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(vg, vw), 1e-5)

	_, err = th.Forward(ctx, black)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interrors.ErrEmbedding))
	assert.True(t, errors.Is(err, errBlankImage))
}

func TestImageErrors(t *testing.T) {
	ctx := context.Background()
	th := NewManaged(NewThumbnailEmbedding())
	require.NoError(t, th.Load(ctx))

	_, err := th.Forward(ctx, filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, errors.Is(err, interrors.ErrStorage))

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0644))
	_, err = th.Forward(ctx, garbage)
	assert.True(t, errors.Is(err, interrors.ErrEmbedding))
}

func TestClipEmbeddingSendsImagesAsDataURIs(t *testing.T) {
	srv := &embeddingServer{dims: 4}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	ctx := context.Background()
	clip := NewClipEmbedding(ts.URL, "", "clip-vit", 0)
	images := NewManaged(clip.Images())
	texts := NewManaged(clip.Texts())
	require.NoError(t, images.Load(ctx))
	require.NoError(t, texts.Load(ctx))
	assert.Equal(t, 4, images.Dimensions())
	assert.Equal(t, 4, texts.Dimensions())

	path := writeImage(t, t.TempDir(), "photo.png", color.NRGBA{G: 200, A: 255})
	vec, err := images.Forward(ctx, path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, math.Sqrt(dot(vec, vec)), 1e-5)

	_, err = texts.Forward(ctx, "a green square")
	require.NoError(t, err)

	inputs := srv.received()
	require.Len(t, inputs, 3, "the shared model is probed once")
	assert.True(t, strings.HasPrefix(inputs[1], "data:image/jpeg;base64,"))
	assert.Equal(t, "a green square", inputs[2])
}

func TestNewFromConfig(t *testing.T) {
	set, err := NewFromConfig(&config.Config{
		TextEmbeddingProvider:  config.TextProviderHash,
		TextVectorDimensions:   64,
		ImageEmbeddingProvider: config.ImageProviderThumbnail,
	})
	require.NoError(t, err)
	assert.Equal(t, "hash", set.Text.Name())
	assert.Equal(t, "thumbnail", set.Image.Name())
	assert.Nil(t, set.JointText)

	set, err = NewFromConfig(&config.Config{
		TextEmbeddingProvider:  config.TextProviderOpenAI,
		TextEmbeddingModel:     "nomic-embed-text",
		ImageEmbeddingProvider: config.ImageProviderClip,
		ImageEmbeddingModel:    "clip",
	})
	require.NoError(t, err)
	assert.NotNil(t, set.JointText)

	_, err = NewFromConfig(&config.Config{TextEmbeddingProvider: "word2vec"})
	assert.True(t, errors.Is(err, interrors.ErrUnsupportedModality))
}
