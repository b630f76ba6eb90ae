package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vertextoedge/halftunes/internal/port"
	"go.uber.org/zap"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// TempFileMaxAge is the maximum age of temp files before cleanup
	TempFileMaxAge time.Duration

	// SearchMaxAge is the maximum age of cached searches before purge
	SearchMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: time.Hour,
		TempFileMaxAge:  24 * time.Hour,
		SearchMaxAge:    time.Hour,
	}
}

// TransferLister lists the identities of transfers that still own
// partial data
type TransferLister interface {
	LiveIDs() []string
}

// Service handles periodic maintenance tasks
type Service struct {
	config    *Config
	storage   port.Storage
	searches  port.SearchCache
	transfers TransferLister
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. searches may be nil when the
// search cache is disabled. transfers may be nil when no download manager
// shares the storage root.
func New(cfg *Config, storage port.Storage, searches port.SearchCache, transfers TransferLister, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if cfg.SearchMaxAge == 0 {
		cfg.SearchMaxAge = time.Hour
	}

	return &Service{
		config:    cfg,
		storage:   storage,
		searches:  searches,
		transfers: transfers,
		logger:    logger.Named("maintenance"),
	}
}

// Start starts the maintenance service
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("temp_file_max_age", s.config.TempFileMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce performs every cleanup task immediately
func (s *Service) RunOnce() {
	s.cleanupTempFiles()
	s.purgeSearches()
}

// maintenanceLoop handles periodic maintenance tasks. Partial files
// left by a previous process are swept on startup.
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.RunOnce()
		}
	}
}

// cleanupTempFiles removes old temporary files from the filesystem. A
// paused transfer can sit untouched for longer than the max age, so the
// partial files of live transfers are kept.
func (s *Service) cleanupTempFiles() {
	var live []string
	if s.transfers != nil {
		live = s.transfers.LiveIDs()
	}
	fileCount, err := s.storage.CleanOldTempFiles(s.config.TempFileMaxAge, live...)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files from filesystem", zap.Int("count", fileCount))
	}
}

// purgeSearches removes expired cached searches
func (s *Service) purgeSearches() {
	if s.searches == nil {
		return
	}
	purged, err := s.searches.PurgeSearches(s.config.SearchMaxAge)
	if err != nil {
		s.logger.Error("failed to purge cached searches", zap.Error(err))
	} else if purged > 0 {
		s.logger.Info("purged cached searches", zap.Int("count", purged))
	}
}
