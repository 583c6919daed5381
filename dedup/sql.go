package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

// SQLStore keeps markers in one PostgreSQL table keyed by (namespace, key).
// The table is created on first use.
type SQLStore struct {
	db    *sql.DB
	table string

	mu      sync.Mutex
	ensured bool
}

// NewSQLStore returns a store writing to table in db.
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = "dedup_markers"
	}
	return &SQLStore{db: db, table: pq.QuoteIdentifier(table)}
}

// OpenSQL opens a lib/pq connection pool for dsn and verifies it.
func OpenSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		return nil
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create dedup table %s: %w", s.table, err)
	}
	s.ensured = true
	return nil
}

// Exists implements Store.
func (s *SQLStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	if err := s.ensure(ctx); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE namespace = $1 AND key = $2)`, s.table)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, namespace, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("query dedup marker: %w", err)
	}
	return exists, nil
}

// PutIfAbsent implements Store.
func (s *SQLStore) PutIfAbsent(ctx context.Context, namespace, key string) (bool, error) {
	if err := s.ensure(ctx); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (namespace, key) VALUES ($1, $2) ON CONFLICT DO NOTHING`, s.table)

	res, err := s.db.ExecContext(ctx, query, namespace, key)
	if err != nil {
		return false, fmt.Errorf("insert dedup marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert dedup marker: %w", err)
	}
	return n == 1, nil
}
