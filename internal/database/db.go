package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/streed/snapnotes/internal/config"
	"github.com/streed/snapnotes/internal/constants"
	"github.com/streed/snapnotes/internal/logger"
	"github.com/streed/snapnotes/internal/migrations"
)

// connection options applied to every pooled connection
const dsnOptions = "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

type DB struct {
	conn       *sql.DB
	path       string
	vecVersion string
}

// New opens the database at cfg's path and brings its schema up to date.
func New(cfg *config.Config) (*DB, error) {
	return Open(context.Background(), cfg.GetDatabasePath())
}

func Open(ctx context.Context, path string) (*DB, error) {
	sqlite_vec.Auto()

	if err := os.MkdirAll(filepath.Dir(path), constants.DataDirMode); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	logger.Debug("Database path: %s", path)

	conn, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.initialize(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func (db *DB) initialize(ctx context.Context) error {
	if err := db.conn.QueryRowContext(ctx, "SELECT vec_version()").Scan(&db.vecVersion); err != nil {
		logger.Debug("sqlite-vec not available: %v", err)
	} else {
		logger.Debug("sqlite-vec version %s loaded", db.vecVersion)
	}

	if _, err := migrations.NewRunner(db.conn).Run(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Path() string {
	return db.path
}

// VecVersion is the loaded sqlite-vec version, empty if the extension is unavailable.
func (db *DB) VecVersion() string {
	return db.vecVersion
}
