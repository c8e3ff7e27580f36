// Package sqlitestore persists ledger records in a local SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	_ "github.com/mattn/go-sqlite3"
)

// Schema is applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS client_records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	client_key TEXT NOT NULL UNIQUE,
	record     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Store keeps one JSON row per client. seq is assigned on first insert and
// preserved by upserts, which gives ListKeys its insertion order.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, key domain.ClientKey) (*domain.ClientRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM client_records WHERE client_key = ?`, string(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrClientNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var rec domain.ClientRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

// Put implements ledger.Store.
func (s *Store) Put(ctx context.Context, rec *domain.ClientRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_records (client_key, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(client_key) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at`,
		string(rec.Key), string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.Key, err)
	}
	return nil
}

// Delete implements ledger.Store.
func (s *Store) Delete(ctx context.Context, key domain.ClientKey) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_records WHERE client_key = ?`, string(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys implements ledger.Store.
func (s *Store) ListKeys(ctx context.Context) ([]domain.ClientKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client_key FROM client_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.ClientKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, domain.ClientKey(k))
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
