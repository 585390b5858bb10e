package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/streed/snapnotes/internal/constants"
	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/logger"
)

// deleteChunk bounds the number of ids bound into one DELETE statement.
const deleteChunk = 500

type entry struct {
	id   uint32
	meta Metadata
	vec  []float32
	norm float64
}

// SQLiteIndex persists records in the vector_records table, partitioned by
// index name, and serves queries from an in-memory copy with a per-note
// bitmap of record ids.
type SQLiteIndex struct {
	db          *sql.DB
	name        string
	dims        int
	dimsFrom    func() int
	defaultTopK int

	mu      sync.RWMutex
	loaded  bool
	records map[uint32]*entry
	notes   *noteIndex
	stale   int
}

type Option func(*SQLiteIndex)

// WithDefaultTopK sets the number of hits returned when Query is called with topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(s *SQLiteIndex) {
		if k > 0 {
			s.defaultTopK = k
		}
	}
}

// WithDimensionsFrom resolves the index dimensionality at Load time, for
// providers that only learn their output size once loaded.
func WithDimensionsFrom(fn func() int) Option {
	return func(s *SQLiteIndex) {
		s.dimsFrom = fn
	}
}

// NewSQLiteIndex creates an index named name. A dims of 0 adopts the
// dimensionality of the first stored or added vector.
func NewSQLiteIndex(db *sql.DB, name string, dims int, opts ...Option) *SQLiteIndex {
	s := &SQLiteIndex{
		db:          db,
		name:        name,
		dims:        dims,
		defaultTopK: constants.DefaultSearchTopK,
		records:     make(map[uint32]*entry),
		notes:       newNoteIndex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteIndex) Name() string { return s.name }

func (s *SQLiteIndex) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Load reads every stored vector of this index into memory. Vectors whose
// dimensionality differs from the index are left on disk and counted as stale.
func (s *SQLiteIndex) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimsFrom != nil {
		if d := s.dimsFrom(); d > 0 {
			s.dims = d
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, note_id, image_uri, dimensions, embedding FROM vector_records WHERE index_name = ? ORDER BY id",
		s.name,
	)
	if err != nil {
		return interrors.Storage(s.op("load"), err)
	}
	defer rows.Close()

	records := make(map[uint32]*entry)
	notes := newNoteIndex()
	stale := 0
	for rows.Next() {
		var (
			id   int64
			meta Metadata
			dims int
			blob []byte
		)
		if err := rows.Scan(&id, &meta.NoteID, &meta.ImageURI, &dims, &blob); err != nil {
			return interrors.Storage(s.op("load"), err)
		}
		vec, err := decode(blob)
		if err != nil {
			return interrors.Storage(s.op("load"), err)
		}
		if s.dims == 0 {
			s.dims = len(vec)
		}
		if len(vec) != s.dims {
			stale++
			continue
		}
		e := &entry{id: uint32(id), meta: meta, vec: vec, norm: norm(vec)}
		records[e.id] = e
		notes.add(meta.NoteID, e.id)
	}
	if err := rows.Err(); err != nil {
		return interrors.Storage(s.op("load"), err)
	}

	if stale > 0 {
		logger.Warn("Index %s has %d vectors with mismatched dimensions; run reindex", s.name, stale)
	}
	logger.Debug("Loaded %d vectors into index %s", len(records), s.name)

	s.records = records
	s.notes = notes
	s.stale = stale
	s.loaded = true
	return nil
}

// Loaded reports whether Load has completed.
func (s *SQLiteIndex) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *SQLiteIndex) Add(ctx context.Context, rec Record) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return 0, fmt.Errorf("%s: %w", s.op("add"), interrors.ErrNotReady)
	}
	if len(rec.Embedding) == 0 {
		return 0, fmt.Errorf("%s: %w: empty vector", s.op("add"), interrors.ErrInvalidEmbedding)
	}
	if s.dims != 0 && len(rec.Embedding) != s.dims {
		return 0, fmt.Errorf("%s: %w: got %d, index has %d",
			s.op("add"), interrors.ErrDimensionMismatch, len(rec.Embedding), s.dims)
	}

	blob, err := encode(rec.Embedding)
	if err != nil {
		return 0, interrors.Storage(s.op("add"), err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO vector_records (index_name, note_id, image_uri, dimensions, embedding) VALUES (?, ?, ?, ?, ?)",
		s.name, rec.Metadata.NoteID, rec.Metadata.ImageURI, len(rec.Embedding), blob,
	)
	if err != nil {
		return 0, interrors.Storage(s.op("add"), err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, interrors.Storage(s.op("add"), err)
	}

	if s.dims == 0 {
		s.dims = len(rec.Embedding)
	}
	vec := append([]float32(nil), rec.Embedding...)
	e := &entry{id: uint32(id), meta: rec.Metadata, vec: vec, norm: norm(vec)}
	s.records[e.id] = e
	s.notes.add(e.meta.NoteID, e.id)
	return e.id, nil
}

// Delete removes every stored record whose metadata satisfies match, scanning
// the whole index.
func (s *SQLiteIndex) Delete(ctx context.Context, match Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return 0, fmt.Errorf("%s: %w", s.op("delete"), interrors.ErrNotReady)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, note_id, image_uri FROM vector_records WHERE index_name = ?", s.name)
	if err != nil {
		return 0, interrors.Storage(s.op("delete"), err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		var meta Metadata
		if err := rows.Scan(&id, &meta.NoteID, &meta.ImageURI); err != nil {
			rows.Close()
			return 0, interrors.Storage(s.op("delete"), err)
		}
		if match(meta) {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, interrors.Storage(s.op("delete"), err)
	}

	if err := s.deleteIDs(ctx, ids); err != nil {
		return 0, interrors.Storage(s.op("delete"), err)
	}
	cached := 0
	for _, id := range ids {
		if e, ok := s.records[uint32(id)]; ok {
			s.notes.remove(e.meta.NoteID, e.id)
			delete(s.records, e.id)
			cached++
		}
	}
	s.dropStale(len(ids) - cached)
	return len(ids), nil
}

func (s *SQLiteIndex) deleteIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += deleteChunk {
		chunk := ids[start:min(start+deleteChunk, len(ids))]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		if _, err := tx.ExecContext(ctx, "DELETE FROM vector_records WHERE id IN ("+placeholders+")", args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeleteByNote removes every record of noteID, touching only that note's
// records. Stale rows of the note left on disk are removed too.
func (s *SQLiteIndex) DeleteByNote(ctx context.Context, noteID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return 0, fmt.Errorf("%s: %w", s.op("delete by note"), interrors.ErrNotReady)
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM vector_records WHERE index_name = ? AND note_id = ?", s.name, noteID)
	if err != nil {
		return 0, interrors.Storage(s.op("delete by note"), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, interrors.Storage(s.op("delete by note"), err)
	}

	cached := s.notes.take(noteID)
	for _, id := range cached {
		delete(s.records, id)
	}
	s.dropStale(int(affected) - len(cached))
	return int(affected), nil
}

func (s *SQLiteIndex) dropStale(n int) {
	s.stale = max(s.stale-n, 0)
}

// Query returns the topK most cosine-similar records, best first. Equal
// similarities keep insertion order.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, fmt.Errorf("%s: %w", s.op("query"), interrors.ErrNotReady)
	}
	if s.dims != 0 && len(vector) != s.dims {
		return nil, fmt.Errorf("%s: %w: got %d, index has %d",
			s.op("query"), interrors.ErrDimensionMismatch, len(vector), s.dims)
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	hits := make([]Hit, 0, len(s.records))
	qnorm := norm(vector)
	if qnorm == 0 {
		return hits, nil
	}

	for _, e := range s.records {
		if e.norm == 0 {
			continue
		}
		hits = append(hits, Hit{
			ID:         e.id,
			Similarity: cosine(vector, qnorm, e.vec, e.norm),
			Metadata:   e.meta,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *SQLiteIndex) CountByNote(noteID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes.count(noteID)
}

func (s *SQLiteIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats summarises the in-memory state of the index.
type Stats struct {
	Name       string `json:"name"`
	Records    int    `json:"records"`
	Notes      int    `json:"notes"`
	Dimensions int    `json:"dimensions"`
	Stale      int    `json:"stale"`
}

func (s *SQLiteIndex) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Name:       s.name,
		Records:    len(s.records),
		Notes:      s.notes.notes(),
		Dimensions: s.dims,
		Stale:      s.stale,
	}
}

func (s *SQLiteIndex) op(action string) string {
	return "vector index " + s.name + ": " + action
}
