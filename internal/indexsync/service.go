// Package indexsync keeps the text and image vector indices consistent with
// the note records. It is the only package that adds or removes vectors.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streed/snapnotes/internal/embeddings"
	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/keylock"
	"github.com/streed/snapnotes/internal/logger"
	"github.com/streed/snapnotes/internal/metrics"
	"github.com/streed/snapnotes/internal/models"
	"github.com/streed/snapnotes/internal/vectorindex"
)

// Operation names used in logs, metrics and the reconciliation queue.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpReindex   = "reindex"
	OpReconcile = "reconcile"
)

// NoteStore is the record store whose notes are mirrored into the indices.
type NoteStore interface {
	Create(ctx context.Context, data models.NoteData) (*models.Note, error)
	GetByID(ctx context.Context, id string) (*models.Note, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.Note, error)
	Update(ctx context.Context, id string, data models.NoteData) (*models.Note, error)
	Delete(ctx context.Context, id string) error
}

// FileStore owns the per-note media directories.
type FileStore interface {
	RemoveNote(ctx context.Context, noteID string) error
	RemoveFile(ctx context.Context, path string) error
	Owns(path string) bool
}

// Gate reports whether indices and providers finished loading.
type Gate interface {
	Check() error
}

type Config struct {
	Notes         NoteStore
	TextIndex     vectorindex.Index
	ImageIndex    vectorindex.Index
	TextEmbedder  embeddings.Provider
	ImageEmbedder embeddings.Provider
	Files         FileStore
	Queue         *Queue
	Gate          Gate
	Metrics       *metrics.Metrics
}

type Service struct {
	notes      NoteStore
	textIndex  vectorindex.Index
	imageIndex vectorindex.Index
	text       embeddings.Provider
	image      embeddings.Provider
	files      FileStore
	queue      *Queue
	gate       Gate
	metrics    *metrics.Metrics
	locks      *keylock.Locker
}

func New(cfg Config) *Service {
	return &Service{
		notes:      cfg.Notes,
		textIndex:  cfg.TextIndex,
		imageIndex: cfg.ImageIndex,
		text:       cfg.TextEmbedder,
		image:      cfg.ImageEmbedder,
		files:      cfg.Files,
		queue:      cfg.Queue,
		gate:       cfg.Gate,
		metrics:    cfg.Metrics,
		locks:      keylock.New(),
	}
}

// OnNoteCreated embeds the note's text and each of its images, in order, and
// adds the vectors. Vectors added before a failure are kept; the note is
// queued for reconciliation instead. On success any queued task of the note
// is resolved.
func (s *Service) OnNoteCreated(ctx context.Context, note *models.Note) error {
	if note == nil {
		return interrors.ErrInvalidNoteID
	}
	return s.run(ctx, OpCreate, note.ID, func(ctx context.Context) error {
		if err := s.index(ctx, note.ID, note.Data()); err != nil {
			return s.enqueue(ctx, note.ID, OpCreate, err)
		}
		return s.settle(ctx, note.ID)
	})
}

// OnNoteUpdated drops every vector of the note and rebuilds them from data.
// A successful rebuild supersedes any queued task of the note, including a
// pending delete.
func (s *Service) OnNoteUpdated(ctx context.Context, noteID string, data models.NoteData) error {
	return s.run(ctx, OpUpdate, noteID, func(ctx context.Context) error {
		if err := s.replace(ctx, noteID, data); err != nil {
			return s.enqueue(ctx, noteID, OpUpdate, err)
		}
		return s.settle(ctx, noteID)
	})
}

// OnNoteDeleted removes the note's text vectors, image vectors, media
// directory and record, in that order. Each step runs even if an earlier one
// failed; all failures are returned together.
func (s *Service) OnNoteDeleted(ctx context.Context, noteID string) error {
	return s.run(ctx, OpDelete, noteID, func(ctx context.Context) error {
		return s.delete(ctx, noteID)
	})
}

// CreateNote stores a new note and indexes it. If indexing fails the stored
// note is returned together with the error.
func (s *Service) CreateNote(ctx context.Context, data models.NoteData) (*models.Note, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	note, err := s.notes.Create(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return note, s.OnNoteCreated(ctx, note)
}

// UpdateNote replaces the note's contents and rebuilds its vectors. Media
// files the note no longer references are removed once the record is
// updated, even if the rebuild fails.
func (s *Service) UpdateNote(ctx context.Context, id string, data models.NoteData) (*models.Note, error) {
	var note *models.Note
	err := s.run(ctx, OpUpdate, id, func(ctx context.Context) error {
		prev, err := s.notes.GetByID(ctx, id)
		if err != nil {
			return err
		}
		note, err = s.notes.Update(ctx, id, data)
		if err != nil {
			return fmt.Errorf("failed to update note %s: %w", id, err)
		}
		err = s.replace(ctx, id, note.Data())
		s.releaseImages(ctx, prev.ImageURIs, note.ImageURIs)
		if err != nil {
			return s.enqueue(ctx, id, OpUpdate, err)
		}
		return s.settle(ctx, id)
	})
	return note, err
}

func (s *Service) DeleteNote(ctx context.Context, id string) error {
	return s.OnNoteDeleted(ctx, id)
}

// Reindex rebuilds the vectors of every note and drops vectors whose note no
// longer exists. Notes with a pending delete are left to Reconcile. It
// returns the number of notes rebuilt.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	notes, err := s.notes.List(ctx, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list notes: %w", err)
	}
	deleting, err := s.pendingDeletes(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	rebuilt := 0
	for _, note := range notes {
		if deleting[note.ID] {
			logger.Info("Skipping note %s: deletion pending reconciliation", note.ID)
			continue
		}
		if err := s.OnNoteUpdated(ctx, note.ID, note.Data()); err != nil {
			errs = append(errs, err)
			continue
		}
		rebuilt++
	}
	if err := s.sweepOrphans(ctx, notes); err != nil {
		errs = append(errs, err)
	}
	return rebuilt, errors.Join(errs...)
}

func (s *Service) sweepOrphans(ctx context.Context, notes []*models.Note) error {
	started := time.Now()
	live := make(map[string]bool, len(notes))
	for _, n := range notes {
		live[n.ID] = true
	}
	// notes created after the listing are looked up once
	orphan := func(m vectorindex.Metadata) bool {
		known, seen := live[m.NoteID]
		if !seen {
			exists, err := s.notes.Exists(ctx, m.NoteID)
			known = err != nil || exists
			live[m.NoteID] = known
		}
		return !known
	}

	var errs []error
	for _, idx := range []vectorindex.Index{s.textIndex, s.imageIndex} {
		removed, err := idx.Delete(ctx, orphan)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to sweep %s index: %w", idx.Name(), err))
			continue
		}
		if removed > 0 {
			logger.Info("Removed %d orphaned vectors from the %s index", removed, idx.Name())
		}
	}
	err := errors.Join(errs...)
	logger.LogOperation(OpReindex, "", started, err)
	s.metrics.SyncOperation(OpReindex, err)
	s.publishGauges(ctx)
	return err
}

// run checks readiness and holds the note lock around fn.
func (s *Service) run(ctx context.Context, op, noteID string, fn func(context.Context) error) (err error) {
	started := time.Now()
	defer func() {
		logger.LogOperation(op, noteID, started, err)
		s.metrics.SyncOperation(op, err)
		s.publishGauges(ctx)
	}()

	if err := s.ready(); err != nil {
		return err
	}
	if noteID == "" {
		return interrors.ErrInvalidNoteID
	}
	unlock, err := s.locks.Lock(ctx, noteID)
	if err != nil {
		return fmt.Errorf("failed to lock note %s: %w", noteID, err)
	}
	defer unlock()
	return fn(ctx)
}

func (s *Service) ready() error {
	if s.gate == nil {
		return nil
	}
	return s.gate.Check()
}

// index adds the vectors of one note. The caller holds the note lock.
func (s *Service) index(ctx context.Context, noteID string, data models.NoteData) error {
	vec, err := s.text.Forward(ctx, data.Text())
	if err != nil {
		return fmt.Errorf("failed to embed text of note %s: %w", noteID, err)
	}
	rec := vectorindex.Record{Embedding: vec, Metadata: vectorindex.Metadata{NoteID: noteID}}
	if _, err := s.textIndex.Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to index text of note %s: %w", noteID, err)
	}

	for _, uri := range data.ImageURIs {
		if s.image == nil {
			return fmt.Errorf("failed to embed image %s: %w", uri, interrors.ErrUnsupportedModality)
		}
		vec, err := s.image.Forward(ctx, uri)
		if err != nil {
			return fmt.Errorf("failed to embed image %s of note %s: %w", uri, noteID, err)
		}
		rec := vectorindex.Record{
			Embedding: vec,
			Metadata:  vectorindex.Metadata{NoteID: noteID, ImageURI: uri},
		}
		if _, err := s.imageIndex.Add(ctx, rec); err != nil {
			return fmt.Errorf("failed to index image %s of note %s: %w", uri, noteID, err)
		}
	}
	return nil
}

// replace deletes all vectors of the note and only then indexes data.
func (s *Service) replace(ctx context.Context, noteID string, data models.NoteData) error {
	if _, err := s.textIndex.DeleteByNote(ctx, noteID); err != nil {
		return fmt.Errorf("failed to clear text vectors of note %s: %w", noteID, err)
	}
	if _, err := s.imageIndex.DeleteByNote(ctx, noteID); err != nil {
		return fmt.Errorf("failed to clear image vectors of note %s: %w", noteID, err)
	}
	return s.index(ctx, noteID, data)
}

// purge removes the vectors and media of a note, attempting every step.
func (s *Service) purge(ctx context.Context, noteID string) error {
	var errs []error
	if _, err := s.textIndex.DeleteByNote(ctx, noteID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete text vectors of note %s: %w", noteID, err))
	}
	if _, err := s.imageIndex.DeleteByNote(ctx, noteID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete image vectors of note %s: %w", noteID, err))
	}
	if err := s.files.RemoveNote(ctx, noteID); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove files of note %s: %w", noteID, err))
	}
	return errors.Join(errs...)
}

func (s *Service) delete(ctx context.Context, noteID string) error {
	var errs []error
	purgeErr := s.purge(ctx, noteID)
	recordErr := s.notes.Delete(ctx, noteID)
	if recordErr != nil {
		recordErr = fmt.Errorf("failed to delete note %s: %w", noteID, recordErr)
	}
	if purgeErr != nil || (recordErr != nil && !errors.Is(recordErr, interrors.ErrNoteNotFound)) {
		errs = append(errs, s.enqueue(ctx, noteID, OpDelete, errors.Join(purgeErr, recordErr)))
	} else if recordErr != nil {
		errs = append(errs, recordErr)
	}
	return errors.Join(errs...)
}

// releaseImages removes managed media files dropped from a note. Failures
// only leave unused files behind and are logged.
func (s *Service) releaseImages(ctx context.Context, before, after []string) {
	kept := make(map[string]bool, len(after))
	for _, uri := range after {
		kept[uri] = true
	}
	for _, uri := range before {
		if kept[uri] || !s.files.Owns(embeddings.ImagePath(uri)) {
			continue
		}
		if err := s.files.RemoveFile(ctx, embeddings.ImagePath(uri)); err != nil {
			logger.Warn("Failed to remove detached image %s: %v", uri, err)
		}
	}
}

func (s *Service) pendingDeletes(ctx context.Context) (map[string]bool, error) {
	tasks, err := s.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	deleting := make(map[string]bool)
	for _, t := range tasks {
		if t.Operation == OpDelete {
			deleting[t.NoteID] = true
		}
	}
	return deleting, nil
}

// settle drops the note's reconciliation task once its vectors match the
// record. The caller holds the note lock.
func (s *Service) settle(ctx context.Context, noteID string) error {
	if err := s.queue.Remove(context.WithoutCancel(ctx), noteID); err != nil {
		return fmt.Errorf("failed to resolve reconciliation task of note %s: %w", noteID, err)
	}
	return nil
}

// enqueue queues noteID for reconciliation and returns cause, joined with
// any failure to queue it.
func (s *Service) enqueue(ctx context.Context, noteID, op string, cause error) error {
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), noteID, op, cause); err != nil {
		logger.Error("Failed to queue note %s for reconciliation: %v", noteID, err)
		return errors.Join(cause, err)
	}
	logger.Warn("Queued note %s for reconciliation after failed %s", noteID, op)
	return cause
}

func (s *Service) publishGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetIndexRecords(s.textIndex.Name(), s.textIndex.Len())
	s.metrics.SetIndexRecords(s.imageIndex.Name(), s.imageIndex.Len())
	if n, err := s.queue.Len(context.WithoutCancel(ctx)); err == nil {
		s.metrics.SetReconcilePending(n)
	}
}
