package models

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/snapnotes/internal/database"
	interrors "github.com/streed/snapnotes/internal/errors"
)

func setupTestRepo(t *testing.T) *NoteRepository {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewNoteRepository(db.Conn())

	// Deterministic, strictly increasing clock
	clock := time.Date(2025, 11, 11, 16, 18, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func TestNoteRepositoryCreate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	note, err := repo.Create(ctx, NoteData{
		Title:     "Trip",
		Content:   "beach photos",
		ImageURIs: []string{"/img/b.jpg", "/img/a.jpg"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)
	assert.Equal(t, note.CreatedAt, note.UpdatedAt)

	got, err := repo.GetByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Title)
	assert.Equal(t, "beach photos", got.Content)
	assert.Equal(t, []string{"/img/b.jpg", "/img/a.jpg"}, got.ImageURIs, "image order is preserved")
	assert.True(t, got.CreatedAt.Equal(note.CreatedAt))
	assert.Nil(t, got.Similarity)
}

func TestNoteRepositoryCreateEmptyNote(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	note, err := repo.Create(ctx, NoteData{})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Title)
	assert.NotNil(t, got.ImageURIs)
	assert.Empty(t, got.ImageURIs)
}

func TestNoteRepositoryGetByIDNotFound(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, interrors.ErrNoteNotFound))

	_, err = repo.GetByID(ctx, "")
	assert.True(t, errors.Is(err, interrors.ErrInvalidNoteID))
}

func TestNoteRepositoryList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, NoteData{Title: "first"})
	require.NoError(t, err)
	second, err := repo.Create(ctx, NoteData{Title: "second", ImageURIs: []string{"x.png"}})
	require.NoError(t, err)
	third, err := repo.Create(ctx, NoteData{Title: "third"})
	require.NoError(t, err)

	notes, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, ids(notes))
	assert.Equal(t, []string{"x.png"}, notes[1].ImageURIs)

	// Updating moves a note to the front
	_, err = repo.Update(ctx, first.ID, NoteData{Title: "first v2"})
	require.NoError(t, err)

	notes, err = repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, third.ID}, ids(notes))

	notes, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids(notes))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNoteRepositoryListEmpty(t *testing.T) {
	repo := setupTestRepo(t)

	notes, err := repo.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

func TestNoteRepositoryUpdate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	note, err := repo.Create(ctx, NoteData{Title: "a", Content: "b", ImageURIs: []string{"1.jpg", "2.jpg"}})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, note.ID, NoteData{Title: "A", Content: "B", ImageURIs: []string{"2.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, "A", updated.Title)
	assert.Equal(t, "B", updated.Content)
	assert.Equal(t, []string{"2.jpg"}, updated.ImageURIs)
	assert.True(t, updated.UpdatedAt.After(note.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(note.CreatedAt))

	_, err = repo.Update(ctx, "missing", NoteData{})
	assert.True(t, errors.Is(err, interrors.ErrNoteNotFound))
}

func TestNoteRepositoryDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	note, err := repo.Create(ctx, NoteData{Title: "gone", ImageURIs: []string{"1.jpg"}})
	require.NoError(t, err)

	exists, err := repo.Exists(ctx, note.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete(ctx, note.ID))

	exists, err = repo.Exists(ctx, note.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	err = repo.Delete(ctx, note.ID)
	assert.True(t, errors.Is(err, interrors.ErrNoteNotFound))

	// Image rows go with the note
	var n int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM note_images WHERE note_id = ?", note.ID).Scan(&n))
	assert.Zero(t, n)
}

func ids(notes []*Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}
