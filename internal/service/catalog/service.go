package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/port"
	"go.uber.org/zap"
)

// Config contains catalog service configuration
type Config struct {
	// Limit is the maximum number of results requested per search
	Limit int

	// CacheTTL is how long cached results are served. Zero disables the cache.
	CacheTTL time.Duration
}

// DefaultConfig returns default catalog configuration
func DefaultConfig() *Config {
	return &Config{
		Limit:    50,
		CacheTTL: time.Hour,
	}
}

// Result is the outcome of one search
type Result struct {
	Term    string         `json:"term"`
	Tracks  []domain.Track `json:"tracks"`
	Skipped int            `json:"skipped"`
	Cached  bool           `json:"cached"`
}

// Service runs catalog searches, at most one at a time. Starting a
// search cancels the one in flight and its result is discarded.
type Service struct {
	config  *Config
	catalog port.Catalog
	cache   port.SearchCache
	logger  *zap.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// New creates a new catalog Service. cache may be nil.
func New(cfg *Config, catalog port.Catalog, cache port.SearchCache, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}

	return &Service{
		config:  cfg,
		catalog: catalog,
		cache:   cache,
		logger:  logger.Named("catalog"),
	}
}

// Search returns the tracks matching term. It fails with
// domain.ErrSearchSuperseded when a newer search started meanwhile.
func (s *Service) Search(ctx context.Context, term string) (*Result, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", domain.ErrInvalidInput)
	}

	ctx, seq := s.begin(ctx)
	defer s.end(seq)

	if tracks, ok := s.cached(term); ok {
		if s.superseded(seq) {
			return nil, domain.ErrSearchSuperseded
		}
		return &Result{Term: term, Tracks: tracks, Cached: true}, nil
	}

	resp, err := s.catalog.Search(ctx, term, s.config.Limit)
	if s.superseded(seq) {
		s.logger.Debug("discarding superseded search", zap.String("term", term))
		return nil, domain.ErrSearchSuperseded
	}
	if err != nil {
		return nil, err
	}

	if resp.Skipped > 0 {
		s.logger.Warn("some search results could not be parsed",
			zap.String("term", term),
			zap.Int("skipped", resp.Skipped))
	}

	if s.cache != nil && s.config.CacheTTL > 0 {
		if err := s.cache.SaveSearch(term, resp.Tracks); err != nil {
			s.logger.Warn("failed to cache search", zap.String("term", term), zap.Error(err))
		}
	}

	return &Result{Term: term, Tracks: resp.Tracks, Skipped: resp.Skipped}, nil
}

// Cancel aborts the search in flight, if any
func (s *Service) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Service) begin(ctx context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	ctx, s.cancel = context.WithCancel(ctx)
	return ctx, s.seq
}

func (s *Service) end(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Service) superseded(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq != seq
}

func (s *Service) cached(term string) ([]domain.Track, bool) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return nil, false
	}
	tracks, ok, err := s.cache.GetSearch(term, s.config.CacheTTL)
	if err != nil {
		s.logger.Warn("search cache lookup failed", zap.String("term", term), zap.Error(err))
		return nil, false
	}
	return tracks, ok
}
