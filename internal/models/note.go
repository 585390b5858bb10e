package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	interrors "github.com/streed/snapnotes/internal/errors"
)

type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURIs []string  `json:"image_uris"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Similarity is only set on search results.
	Similarity *float64 `json:"similarity,omitempty"`
}

// NoteData is the mutable part of a note, used for create and update.
type NoteData struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	ImageURIs []string `json:"image_uris"`
}

// Data returns the mutable fields of n.
func (n *Note) Data() NoteData {
	return NoteData{
		Title:     n.Title,
		Content:   n.Content,
		ImageURIs: append([]string(nil), n.ImageURIs...),
	}
}

// Text is the string embedded into the text index for this note.
func (d NoteData) Text() string {
	return d.Title + " " + d.Content
}

// Preview returns the content collapsed to a single line of at most limit runes.
func (n *Note) Preview(limit int) string {
	s := strings.Join(strings.Fields(n.Content), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

type NoteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *NoteRepository) Create(ctx context.Context, data NoteData) (*Note, error) {
	now := r.now()
	note := &Note{
		ID:        uuid.NewString(),
		Title:     data.Title,
		Content:   data.Content,
		ImageURIs: append([]string{}, data.ImageURIs...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO notes (id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			note.ID, note.Title, note.Content, note.CreatedAt, note.UpdatedAt,
		); err != nil {
			return err
		}
		return writeImages(ctx, tx, note.ID, note.ImageURIs)
	})
	if err != nil {
		return nil, interrors.Storage("create note", err)
	}
	return note, nil
}

func (r *NoteRepository) GetByID(ctx context.Context, id string) (*Note, error) {
	if id == "" {
		return nil, interrors.ErrInvalidNoteID
	}

	var note Note
	err := r.db.QueryRowContext(ctx,
		"SELECT id, title, content, created_at, updated_at FROM notes WHERE id = ?",
		id,
	).Scan(&note.ID, &note.Title, &note.Content, &note.CreatedAt, &note.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", interrors.ErrNoteNotFound, id)
	}
	if err != nil {
		return nil, interrors.Storage("get note", err)
	}

	images, err := r.imagesFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	note.ImageURIs = nonNil(images[id])
	return &note, nil
}

// Exists reports whether a record with id is present.
func (r *NoteRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes WHERE id = ?", id).Scan(&n); err != nil {
		return false, interrors.Storage("check note", err)
	}
	return n > 0, nil
}

// List returns notes most recently updated first. A limit of 0 returns all notes.
func (r *NoteRepository) List(ctx context.Context, limit, offset int) ([]*Note, error) {
	query := "SELECT id, title, content, created_at, updated_at FROM notes ORDER BY updated_at DESC, rowid DESC"
	args := []interface{}{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, interrors.Storage("list notes", err)
	}
	defer rows.Close()

	notes := []*Note{}
	ids := []string{}
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.Title, &note.Content, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, interrors.Storage("scan note", err)
		}
		notes = append(notes, &note)
		ids = append(ids, note.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, interrors.Storage("iterate notes", err)
	}
	rows.Close()

	images, err := r.imagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		note.ImageURIs = nonNil(images[note.ID])
	}
	return notes, nil
}

func (r *NoteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&n); err != nil {
		return 0, interrors.Storage("count notes", err)
	}
	return n, nil
}

// Update replaces the mutable fields of a note, including its image list.
func (r *NoteRepository) Update(ctx context.Context, id string, data NoteData) (*Note, error) {
	if id == "" {
		return nil, interrors.ErrInvalidNoteID
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ?",
			data.Title, data.Content, r.now(), id,
		)
		if err != nil {
			return interrors.Storage("update note", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return interrors.Storage("update note", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", interrors.ErrNoteNotFound, id)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM note_images WHERE note_id = ?", id); err != nil {
			return interrors.Storage("update note images", err)
		}
		return interrors.Storage("update note images", writeImages(ctx, tx, id, data.ImageURIs))
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return interrors.ErrInvalidNoteID
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return interrors.Storage("delete note", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return interrors.Storage("delete note", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", interrors.ErrNoteNotFound, id)
	}
	return nil
}

func (r *NoteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func writeImages(ctx context.Context, tx *sql.Tx, noteID string, uris []string) error {
	for i, uri := range uris {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO note_images (note_id, position, uri) VALUES (?, ?, ?)",
			noteID, i, uri,
		); err != nil {
			return err
		}
	}
	return nil
}

// imageQueryChunk keeps IN lists well below SQLite's bound variable limit.
const imageQueryChunk = 500

func (r *NoteRepository) imagesFor(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for start := 0; start < len(ids); start += imageQueryChunk {
		end := min(start+imageQueryChunk, len(ids))
		if err := r.loadImages(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *NoteRepository) loadImages(ctx context.Context, ids []string, out map[string][]string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT note_id, uri FROM note_images WHERE note_id IN ("+placeholders+") ORDER BY note_id, position",
		args...,
	)
	if err != nil {
		return interrors.Storage("load note images", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID, uri string
		if err := rows.Scan(&noteID, &uri); err != nil {
			return interrors.Storage("scan note image", err)
		}
		out[noteID] = append(out[noteID], uri)
	}
	if err := rows.Err(); err != nil {
		return interrors.Storage("iterate note images", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
