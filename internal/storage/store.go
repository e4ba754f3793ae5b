package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// TradeEntry is one row of the trade journal: an order submission, a
// partial fill, or a completion. The journal is an operator audit trail;
// the live order lifecycle is tracked in memory by the engine.
type TradeEntry struct {
	Kind    string // "SUBMIT", "FILL", "COMPLETE"
	OrderID string
	Ticker  string
	Side    string
	Qty     int64
	Price   string
	TsUnix  int64
}

// Store handles persistent state in SQLite: a key-value metadata table
// (access-token cache) and an append-only trade journal.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			order_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			side TEXT NOT NULL,
			qty INTEGER NOT NULL,
			price TEXT NOT NULL,
			ts INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}

	return &Store{db: db}, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *Store) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table.
// Missing keys return an empty string, not an error.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// AppendTrade appends one entry to the trade journal.
func (s *Store) AppendTrade(ctx context.Context, e TradeEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO trades (kind, order_id, ticker, side, qty, price, ts) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.Kind, e.OrderID, e.Ticker, e.Side, e.Qty, e.Price, e.TsUnix,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade entry: %w", err)
	}
	return nil
}

// TradesForOrder returns the journal entries for one order, oldest first.
func (s *Store) TradesForOrder(ctx context.Context, orderID string) ([]TradeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, order_id, ticker, side, qty, price, ts FROM trades WHERE order_id = ? ORDER BY id ASC",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var entries []TradeEntry
	for rows.Next() {
		var e TradeEntry
		if err := rows.Scan(&e.Kind, &e.OrderID, &e.Ticker, &e.Side, &e.Qty, &e.Price, &e.TsUnix); err != nil {
			return nil, fmt.Errorf("failed to scan trade entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
