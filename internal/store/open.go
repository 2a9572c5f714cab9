package store

import "log/slog"

// Open returns the store selected by dsn: in-memory when empty, otherwise
// PostgreSQL or SQLite according to DetectDSNType.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Info("store.Open: no DSN configured, using in-memory receipts ledger")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		slog.Info("store.Open: using PostgreSQL receipts ledger")
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	slog.Info("store.Open: using SQLite receipts ledger", "path", dsn)
	lite, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return lite, nil
}
