package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
)

// NormalizeTerm folds case and collapses whitespace so equivalent
// searches share a cache row
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}

// SaveSearch replaces the cached results for term
func (s *Store) SaveSearch(term string, tracks []domain.Track) error {
	key := NormalizeTerm(term)
	if key == "" {
		return fmt.Errorf("%w: empty search term", domain.ErrInvalidInput)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM search_tracks
		WHERE search_id IN (SELECT id FROM searches WHERE term = ?)
	`, key); err != nil {
		return fmt.Errorf("failed to clear cached tracks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM searches WHERE term = ?", key); err != nil {
		return fmt.Errorf("failed to clear cached search: %w", err)
	}

	result, err := tx.Exec(
		"INSERT INTO searches (term, result_count, searched_at) VALUES (?, ?, ?)",
		key, len(tracks), s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search: %w", err)
	}
	searchID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO search_tracks (search_id, position, name, artist, preview_url)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range tracks {
		if _, err := stmt.Exec(searchID, i, t.Name, t.Artist, t.PreviewURL); err != nil {
			return fmt.Errorf("failed to insert track %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetSearch returns cached results for term no older than maxAge.
// A zero maxAge accepts any age.
func (s *Store) GetSearch(term string, maxAge time.Duration) ([]domain.Track, bool, error) {
	key := NormalizeTerm(term)

	var searchID, searchedAt int64
	err := s.db.QueryRow("SELECT id, searched_at FROM searches WHERE term = ?", key).Scan(&searchID, &searchedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if maxAge > 0 && s.now().Sub(time.Unix(0, searchedAt)) > maxAge {
		return nil, false, nil
	}

	rows, err := s.db.Query(`
		SELECT position, name, artist, preview_url
		FROM search_tracks
		WHERE search_id = ?
		ORDER BY position
	`, searchID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	tracks := []domain.Track{}
	for rows.Next() {
		var t domain.Track
		if err := rows.Scan(&t.Index, &t.Name, &t.Artist, &t.PreviewURL); err != nil {
			return nil, false, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	return tracks, true, nil
}

// PurgeSearches removes searches older than the given age
func (s *Store) PurgeSearches(olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan).UnixNano()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM search_tracks
		WHERE search_id IN (SELECT id FROM searches WHERE searched_at < ?)
	`, cutoff); err != nil {
		return 0, err
	}

	result, err := tx.Exec("DELETE FROM searches WHERE searched_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}
