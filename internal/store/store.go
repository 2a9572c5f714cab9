// Package store provides storage backends for the notification delivery ledger.
//
// It includes an in-memory store and persistent SQLite and PostgreSQL stores
// selected from the DSN.
package store

import (
	"strings"
	"sync"

	"github.com/afyalink/afyalink/internal/models"
)

// Store records delivery receipts for outbound notifications.
type Store interface {
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	Close() error
}

// Opts holds configuration for persistent stores.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the path of the SQLite database file.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or key/value strings and
// "sqlite3" for everything else (file paths).
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a simple in-memory store for receipts.
type InMemoryStore struct {
	mu       sync.RWMutex
	receipts []models.Receipt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Receipt(nil), s.receipts...), nil
}

// ClearReceipts deletes all receipts (for tests).
func (s *InMemoryStore) ClearReceipts() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = nil
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
