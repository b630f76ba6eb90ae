package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/halftunes/internal/port"
)

// Store implements port.SearchCache using SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Ensure Store implements port.SearchCache
var _ port.SearchCache = (*Store)(nil)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pragmas for better performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, now: time.Now}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		// One row per normalized search term. searched_at is unix nanoseconds.
		`CREATE TABLE IF NOT EXISTS searches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			term TEXT UNIQUE NOT NULL,
			result_count INTEGER NOT NULL DEFAULT 0,
			searched_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS search_tracks (
			search_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			artist TEXT NOT NULL,
			preview_url TEXT NOT NULL,
			PRIMARY KEY (search_id, position),
			FOREIGN KEY (search_id) REFERENCES searches(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_searches_searched_at ON searches(searched_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// Stats returns search cache statistics
func (s *Store) Stats() (*port.SearchCacheStats, error) {
	stats := &port.SearchCacheStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM searches").Scan(&stats.Searches); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM search_tracks").Scan(&stats.Tracks); err != nil {
		return nil, err
	}

	return stats, nil
}
