package migrations

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestRunAppliesAllMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runner := NewRunner(db)

	count, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(All()), count)

	for _, table := range []string{"notes", "note_images", "vector_records", "reconcile_queue"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	// Second run is a no-op
	count, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runner := NewRunner(db)

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.False(t, s.Applied, s.ID)
	}

	_, err = runner.Run(ctx)
	require.NoError(t, err)

	status, err = runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, len(All()))
	assert.Equal(t, "000_initial_schema", status[0].ID)
	for _, s := range status {
		assert.True(t, s.Applied, s.ID)
		assert.NotNil(t, s.AppliedAt)
	}
}

func TestRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runner := NewRunner(db)
	_, err := runner.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, runner.Rollback(ctx, "002_reconcile_queue"))
	assert.False(t, tableExists(t, db, "reconcile_queue"))

	err = runner.Rollback(ctx, "002_reconcile_queue")
	assert.ErrorContains(t, err, "not applied")

	err = runner.Rollback(ctx, "999_missing")
	assert.ErrorContains(t, err, "not found")

	count, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, tableExists(t, db, "reconcile_queue"))
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	runner := newRunner(db, []Migration{
		{ID: "001_ok", Description: "ok", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE ok_table (id INTEGER)")
			return err
		}},
		{ID: "002_bad", Description: "bad", Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec("CREATE TABLE bad_table (id INTEGER)"); err != nil {
				return err
			}
			return boom
		}},
	})

	count, err := runner.Run(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count)
	assert.True(t, tableExists(t, db, "ok_table"))
	assert.False(t, tableExists(t, db, "bad_table"), "failed migration must roll back")

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied)

	err = runner.Rollback(ctx, "001_ok")
	assert.ErrorContains(t, err, "does not support rollback")
}
