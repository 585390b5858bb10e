// Package filestore manages the per-note directories holding attached images.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lithammer/shortuuid/v4"

	"github.com/streed/snapnotes/internal/constants"
	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/logger"
)

// Store lays files out as <root>/<noteID>/images/<id><ext>.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// NoteDir is the directory owning every managed file of noteID.
func (s *Store) NoteDir(noteID string) string {
	return filepath.Join(s.root, noteID)
}

func (s *Store) imagesDir(noteID string) string {
	return filepath.Join(s.NoteDir(noteID), "images")
}

// AddImage copies (or moves) src into the note's image directory under a
// fresh name and returns the managed path.
func (s *Store) AddImage(ctx context.Context, noteID, src string, move bool) (string, error) {
	if noteID == "" || strings.ContainsAny(noteID, `/\`) || noteID == "." || noteID == ".." {
		return "", fmt.Errorf("%w: %q", interrors.ErrInvalidNoteID, noteID)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := s.imagesDir(noteID)
	if err := os.MkdirAll(dir, constants.DataDirMode); err != nil {
		return "", classify("create image directory", err)
	}

	dst := filepath.Join(dir, shortuuid.New()+strings.ToLower(filepath.Ext(src)))
	if move {
		if err := os.Rename(src, dst); err == nil {
			logger.Debug("Moved %s to %s", src, dst)
			return dst, nil
		}
		// Cross-device moves fall back to copy and remove
	}

	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return "", classify("copy image", err)
	}
	if move {
		if err := os.Remove(src); err != nil {
			logger.Warn("Copied %s but could not remove the original: %v", src, err)
		}
	}
	logger.Debug("Copied %s to %s", src, dst)
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RemoveNote deletes the note's directory tree. A missing directory is not an error.
func (s *Store) RemoveNote(ctx context.Context, noteID string) error {
	if noteID == "" {
		return interrors.ErrInvalidNoteID
	}
	dir := s.NoteDir(noteID)
	if !s.Exists(dir) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return classify("remove note directory", err)
	}
	logger.Debug("Removed note directory %s", dir)
	return nil
}

// RemoveFile deletes a single managed file. Missing files are ignored;
// paths outside the store are refused.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	if !s.Owns(path) {
		return fmt.Errorf("%w: %s is not a managed file", interrors.ErrPermission, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classify("remove file", err)
	}
	return nil
}

// Owns reports whether path lies inside the store root.
func (s *Store) Owns(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func classify(op string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return interrors.Permission(op, err)
	}
	return interrors.Storage(op, err)
}
