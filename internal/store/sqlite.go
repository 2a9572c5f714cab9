package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/util"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	if r.ID == "" {
		r.ID = util.GenerateRandomID("rcpt_", 16)
	}
	_, err := s.db.Exec(`INSERT INTO receipts (id, recipient, channel, kind, status, error, time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.To, r.Channel, r.Kind, r.Status, r.Error, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("SQLiteStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT id, recipient, channel, kind, status, error, time FROM receipts ORDER BY time, rowid`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	receipts, err := scanReceipts(rows)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

// ClearReceipts deletes all records in receipts table (for tests).
func (s *SQLiteStore) ClearReceipts() error {
	_, err := s.db.Exec("DELETE FROM receipts")
	return err
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
