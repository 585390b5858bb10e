// Package vectorindex stores embedding vectors tagged with note metadata and
// answers nearest-neighbour queries over them.
package vectorindex

import "context"

// Metadata ties a vector back to the note (and image) it was computed from.
// Text records leave ImageURI empty.
type Metadata struct {
	NoteID   string `json:"note_id"`
	ImageURI string `json:"image_uri,omitempty"`
}

type Record struct {
	Embedding []float32
	Metadata  Metadata
}

// Hit is one query result. ID is the record's insertion-ordered identifier.
type Hit struct {
	ID         uint32   `json:"id"`
	Similarity float64  `json:"similarity"`
	Metadata   Metadata `json:"metadata"`
}

// Predicate selects records for deletion.
type Predicate func(Metadata) bool

// ForNote matches every record belonging to noteID.
func ForNote(noteID string) Predicate {
	return func(m Metadata) bool { return m.NoteID == noteID }
}

// Index is a persistent nearest-neighbour index.
type Index interface {
	Name() string
	Load(ctx context.Context) error
	Add(ctx context.Context, rec Record) (uint32, error)
	Delete(ctx context.Context, match Predicate) (int, error)
	DeleteByNote(ctx context.Context, noteID string) (int, error)
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	CountByNote(noteID string) int
	Len() int
}
