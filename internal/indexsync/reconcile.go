package indexsync

import (
	"context"
	"errors"
	"fmt"

	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/logger"
)

// Report summarises one reconciliation pass.
type Report struct {
	Processed int `json:"processed"`
	Rebuilt   int `json:"rebuilt"`
	Purged    int `json:"purged"`
	Failed    int `json:"failed"`
}

// Reconcile drains the reconciliation queue once. A note whose record still
// exists has its vectors rebuilt; otherwise its vectors and files are
// removed. Notes queued by a failed delete have their record deleted first.
// Failed tasks stay queued with their attempt count raised.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	var report Report
	if err := s.ready(); err != nil {
		return report, err
	}
	tasks, err := s.queue.List(ctx)
	if err != nil {
		return report, err
	}

	var errs []error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report.Processed++

		var rebuilt bool
		err := s.run(ctx, OpReconcile, task.NoteID, func(ctx context.Context) error {
			var err error
			rebuilt, err = s.reconcile(ctx, task)
			if err != nil {
				return errors.Join(err, s.queue.Fail(context.WithoutCancel(ctx), task.NoteID, err))
			}
			return s.queue.Remove(ctx, task.NoteID)
		})
		switch {
		case err != nil:
			report.Failed++
			errs = append(errs, err)
		case rebuilt:
			report.Rebuilt++
		default:
			report.Purged++
		}
	}
	return report, errors.Join(errs...)
}

// reconcile repairs one note. The caller holds the note lock.
func (s *Service) reconcile(ctx context.Context, task Task) (rebuilt bool, err error) {
	exists, err := s.notes.Exists(ctx, task.NoteID)
	if err != nil {
		return false, err
	}
	if exists && task.Operation == OpDelete && !s.superseded(ctx, task) {
		if err := s.notes.Delete(ctx, task.NoteID); err != nil && !errors.Is(err, interrors.ErrNoteNotFound) {
			return false, fmt.Errorf("failed to delete note %s: %w", task.NoteID, err)
		}
		exists = false
	}

	if !exists {
		return false, s.purge(ctx, task.NoteID)
	}
	note, err := s.notes.GetByID(ctx, task.NoteID)
	if err != nil {
		return false, err
	}
	return true, s.replace(ctx, note.ID, note.Data())
}

// superseded reports whether the note was changed after a delete task was
// last recorded, in which case the record is kept and only rebuilt.
func (s *Service) superseded(ctx context.Context, task Task) bool {
	note, err := s.notes.GetByID(ctx, task.NoteID)
	if err != nil {
		return false
	}
	if note.UpdatedAt.After(task.UpdatedAt) {
		logger.Info("Keeping note %s: updated after its failed delete", task.NoteID)
		return true
	}
	return false
}

// Pending lists the queued reconciliation tasks.
func (s *Service) Pending(ctx context.Context) ([]Task, error) {
	return s.queue.List(ctx)
}
