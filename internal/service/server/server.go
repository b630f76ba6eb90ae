package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/domain/event"
	"github.com/vertextoedge/halftunes/internal/port"
	"github.com/vertextoedge/halftunes/internal/service/catalog"
	"go.uber.org/zap"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// TransferController is the download manager surface the API drives
type TransferController interface {
	Start(track domain.Track) (bool, error)
	Pause(id string) bool
	Resume(id string) bool
	Cancel(id string) bool
	Snapshot(id string) (domain.TransferSnapshot, bool)
	Transfers() []domain.TransferSnapshot
	Counts() map[string]int
}

// Searcher runs catalog searches
type Searcher interface {
	Search(ctx context.Context, term string) (*catalog.Result, error)
}

// Dependencies are the services exposed over HTTP. SearchCache and
// Metrics are optional.
type Dependencies struct {
	Transfers   TransferController
	Catalog     Searcher
	Storage     port.Storage
	SearchCache port.SearchCache
	Metrics     *event.MetricsHandler
}

// Server represents the HTTP API server
type Server struct {
	config          *Config
	deps            Dependencies
	logger          *zap.Logger
	server          *http.Server
	transferHandler *TransferHandler
	searchHandler   *SearchHandler
	debugHandler    *DebugHandler
}

// New creates a new HTTP server
func New(cfg *Config, deps Dependencies, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger = logger.Named("http")

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	s.transferHandler = NewTransferHandler(deps.Transfers, logger)
	s.searchHandler = NewSearchHandler(deps.Catalog, logger)
	s.debugHandler = NewDebugHandler(deps, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/search", s.searchHandler.HandleSearch)

	// Transfer control
	mux.HandleFunc("/transfers", s.transferHandler.HandleTransfers)
	mux.HandleFunc("/transfers/pause", s.transferHandler.HandlePause)
	mux.HandleFunc("/transfers/resume", s.transferHandler.HandleResume)
	mux.HandleFunc("/transfers/cancel", s.transferHandler.HandleCancel)
	mux.HandleFunc("/transfers/progress", s.transferHandler.HandleProgress)

	// Debug endpoints
	mux.HandleFunc("/debug/stats", s.debugHandler.HandleStats)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(RecoveryMiddleware(logger)(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.deps.SearchCache != nil {
		if err := s.deps.SearchCache.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
