package port

import (
	"context"
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
)

// SearchResponse is the result of one catalog query
type SearchResponse struct {
	Tracks []domain.Track
	// Skipped counts result records that could not be turned into tracks
	Skipped int
}

// Catalog queries a remote media catalog
type Catalog interface {
	Search(ctx context.Context, term string, limit int) (*SearchResponse, error)
}

// SearchCacheStats summarizes the search cache
type SearchCacheStats struct {
	Searches int64 `json:"searches"`
	Tracks   int64 `json:"tracks"`
}

// SearchCache stores recent search results keyed by normalized term
type SearchCache interface {
	// SaveSearch replaces the cached results for term
	SaveSearch(term string, tracks []domain.Track) error

	// GetSearch returns cached results no older than maxAge
	// The bool is false on a cache miss
	GetSearch(term string, maxAge time.Duration) ([]domain.Track, bool, error)

	// PurgeSearches removes searches older than the given age
	PurgeSearches(olderThan time.Duration) (int, error)

	// Stats returns cache statistics
	Stats() (*SearchCacheStats, error)

	// Ping checks database connectivity
	Ping() error
}
