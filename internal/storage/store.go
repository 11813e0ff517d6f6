// Package storage persists the pipeline's inputs and outputs in
// SQLite: a WAL-first event log that replay reconstructs state from,
// plus feature and bar tables for research consumers.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"microflow/internal/domain"
	"microflow/internal/event"
	"microflow/pkg/quant"
)

// Store handles persistent storage in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Configure SQLite for high-throughput deterministic logging
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		// WAL-first event log: id is the pipeline sequence number.
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS features (
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_features_ts ON features(ts);`,
		`CREATE TABLE IF NOT EXISTS bars (
			ts INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			tick_count INTEGER NOT NULL,
			buy_volume REAL NOT NULL,
			sell_volume REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bars_ts ON bars(ts);`,
	}
	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// SaveEvent appends an event to the WAL log.
func (s *Store) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (id, type, ts, payload) VALUES (?, ?, ?, ?)",
		ev.GetSeq(), ev.GetType(), ev.GetTs(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// SaveFeatures appends one feature vector.
func (s *Store) SaveFeatures(ctx context.Context, fs *domain.FeatureSet) error {
	payload, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO features (ts, symbol, payload) VALUES (?, ?, ?)",
		int64(fs.Time), fs.Symbol, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert features: %w", err)
	}
	return nil
}

// SaveBar appends one closed bar.
func (s *Store) SaveBar(ctx context.Context, bar domain.Bar) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bars (ts, kind, open, high, low, close, volume, tick_count, buy_volume, sell_volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(bar.Time), bar.Kind, bar.Open, bar.High, bar.Low, bar.Close,
		bar.Volume, bar.TickCount, bar.BuyVolume, bar.SellVolume,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bar: %w", err)
	}
	return nil
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
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetLastSeq returns the highest event sequence number stored in WAL.
// Returns 0 if no events exist.
func (s *Store) GetLastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil // No events yet
	}
	return uint64(lastSeq.Int64), nil
}

// LoadEvents loads events from WAL starting at fromSeq (inclusive), in
// sequence order. Used by replay to reconstruct state through the same
// code path as live ingestion.
func (s *Store) LoadEvents(ctx context.Context, fromSeq uint64) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, payload FROM events WHERE id >= ? ORDER BY id ASC",
		fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var id int64
		var evType int
		var payload []byte

		if err := rows.Scan(&id, &evType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		switch event.Type(evType) {
		case event.EvTick:
			var ev event.TickEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tick event %d: %w", id, err)
			}
			events = append(events, &ev)
		case event.EvBook:
			var ev event.BookEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return nil, fmt.Errorf("failed to unmarshal book event %d: %w", id, err)
			}
			events = append(events, &ev)
		default:
			// Halt events carry no replayable state.
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}

// CountFeatures reports how many feature rows are stored.
func (s *Store) CountFeatures(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM features").Scan(&n)
	return n, err
}

// LoadBars returns stored bars of one kind in time order.
func (s *Store) LoadBars(ctx context.Context, kind domain.BarKind) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, kind, open, high, low, close, volume, tick_count, buy_volume, sell_volume
		 FROM bars WHERE kind = ? ORDER BY ts ASC`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Kind, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.TickCount, &b.BuyVolume, &b.SellVolume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Time = quant.TimeStamp(ts)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
