package server

import (
	"errors"
	"net/http"

	"github.com/vertextoedge/halftunes/internal/domain"
	"go.uber.org/zap"
)

// SearchHandler exposes catalog search
type SearchHandler struct {
	catalog Searcher
	logger  *zap.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(catalog Searcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// HandleSearch handles GET /search?term=
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.catalog.Search(r.Context(), r.URL.Query().Get("term"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrSearchSuperseded):
		http.Error(w, "Search superseded by a newer search", http.StatusConflict)
	case domain.IsTransportFailure(err):
		h.logger.Warn("catalog search failed", zap.Error(err))
		http.Error(w, "Catalog unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("catalog search failed", zap.Error(err))
		http.Error(w, "Search failed", http.StatusInternalServerError)
	}
}
