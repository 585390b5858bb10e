package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/streed/snapnotes/internal/logger"
)

// Migration is one schema step. Down is optional.
type Migration struct {
	ID          string // Sortable identifier, e.g. "001_vector_records"
	Description string
	Up          func(tx *sql.Tx) error
	Down        func(tx *sql.Tx) error
}

func (m Migration) checksum() string {
	return strconv.FormatUint(xxhash.Sum64String(m.ID+"\x00"+m.Description), 16)
}

// Status describes whether a migration has been applied.
type Status struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

// Runner applies and rolls back migrations against a database.
type Runner struct {
	db         *sql.DB
	migrations []Migration
}

func NewRunner(db *sql.DB) *Runner {
	return newRunner(db, All())
}

func newRunner(db *sql.DB, migrations []Migration) *Runner {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	return &Runner{db: db, migrations: sorted}
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			checksum TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (r *Runner) applied(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[id] = at
	}
	return applied, rows.Err()
}

// inTx runs fn in a transaction, rolling back if fn fails.
func (r *Runner) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to rollback transaction: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Run applies every pending migration in ID order and returns how many ran.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range r.migrations {
		if _, ok := applied[m.ID]; ok {
			logger.Debug("Migration %s already applied, skipping", m.ID)
			continue
		}

		logger.Debug("Running migration: %s - %s", m.ID, m.Description)
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (id, description, applied_at, checksum) VALUES (?, ?, ?, ?)",
				m.ID, m.Description, time.Now().UTC(), m.checksum(),
			)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("migration %s failed: %w", m.ID, err)
		}
		count++
	}

	if count > 0 {
		logger.Info("Applied %d database migrations", count)
	}
	return count, nil
}

// Status lists every known migration with its applied state.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]Status, 0, len(r.migrations))
	for _, m := range r.migrations {
		s := Status{ID: m.ID, Description: m.Description}
		if at, ok := applied[m.ID]; ok {
			s.Applied = true
			s.AppliedAt = &at
		}
		status = append(status, s)
	}
	return status, nil
}

// Rollback reverts a single applied migration.
func (r *Runner) Rollback(ctx context.Context, id string) error {
	var target *Migration
	for i := range r.migrations {
		if r.migrations[i].ID == id {
			target = &r.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %s not found", id)
	}
	if target.Down == nil {
		return fmt.Errorf("migration %s does not support rollback", id)
	}

	if err := r.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return err
	}
	if _, ok := applied[id]; !ok {
		return fmt.Errorf("migration %s is not applied", id)
	}

	logger.Info("Rolling back migration: %s - %s", target.ID, target.Description)
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if err := target.Down(tx); err != nil {
			return err
		}
		_, err := tx.Exec("DELETE FROM schema_migrations WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("rollback %s failed: %w", id, err)
	}
	return nil
}
