package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/unsuggest/dbopen"
	"github.com/hazyhaar/unsuggest/watch"
)

// Schema is the settings table.
const Schema = `CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite stores settings in the settings table.
type SQLite struct {
	db       *sql.DB
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *watch.Watcher
}

// NewSQLite uses an open database, creating the table if needed.
// A zero interval polls for external writes every second.
func NewSQLite(db *sql.DB, interval time.Duration, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("settings: create schema: %w", err)
	}
	return &SQLite{db: db, interval: interval, logger: logger}, nil
}

// OpenSQLite opens (and creates) the database file at path.
func OpenSQLite(path string, interval time.Duration, logger *slog.Logger) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return NewSQLite(db, interval, logger)
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, def bool) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, KeyEnabled).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, unavailable("get", err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warn("settings: malformed value, using default", "value", raw)
		return def, nil
	}
	return v, nil
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, enabled bool) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		KeyEnabled, strconv.FormatBool(enabled), time.Now().UnixNano())
	if err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Watch polls updated_at and calls fn after every write, from any process.
func (s *SQLite) Watch(ctx context.Context, fn func() error) error {
	w := watch.New(s.db, watch.MaxColumnDetector("settings", "updated_at"), watch.Options{
		Interval: s.interval,
		Logger:   s.logger,
	})
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	w.OnChange(ctx, fn)
	return nil
}

// WatchStats reports the counters of the running Watch, false before
// Watch is called.
func (s *SQLite) WatchStats() (watch.Stats, bool) {
	s.mu.Lock()
	w := s.watcher
	s.mu.Unlock()
	if w == nil {
		return watch.Stats{}, false
	}
	return w.Stats(), true
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
