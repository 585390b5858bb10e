package errors

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application
var (
	// Record store errors
	ErrNoteNotFound  = errors.New("note not found")
	ErrInvalidNoteID = errors.New("invalid note ID")
	ErrEmptyContent  = errors.New("content cannot be empty")

	// Failure categories. Callers match on these with errors.Is; the
	// underlying cause stays reachable through the same chain.
	ErrPermission = errors.New("permission denied")
	ErrStorage    = errors.New("storage failure")
	ErrEmbedding  = errors.New("embedding failure")

	// Lifecycle errors
	ErrNotReady = errors.New("vector indices and embedding providers are not loaded")

	// Search errors
	ErrInvalidQuery        = errors.New("exactly one of a text query or an image reference must be provided")
	ErrUnsupportedModality = errors.New("no embedding provider configured for this modality")

	// Vector errors
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidEmbedding  = errors.New("invalid embedding data length")

	// Config errors
	ErrInvalidBoolean   = errors.New("invalid boolean value (use true/false)")
	ErrInvalidNumber    = errors.New("invalid numeric value")
	ErrUnknownConfigKey = errors.New("unknown configuration key")
)

// Storage tags err as a persistence failure of op.
func Storage(op string, err error) error {
	return categorize(ErrStorage, op, err)
}

// Embedding tags err as an inference failure of op.
func Embedding(op string, err error) error {
	return categorize(ErrEmbedding, op, err)
}

// Permission tags err as a denied media or file access of op.
func Permission(op string, err error) error {
	return categorize(ErrPermission, op, err)
}

func categorize(category error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, category) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, category, err)
}
