package server

import (
	"net/http"

	"go.uber.org/zap"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(deps Dependencies, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		deps:   deps,
		logger: logger,
	}
}

// HandleStats handles debug statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"transfers": h.deps.Transfers.Counts(),
	}

	if h.deps.Metrics != nil {
		response["events"] = h.deps.Metrics.GetMetrics()
	}

	if h.deps.Storage != nil {
		size, err := h.deps.Storage.GetCacheSize()
		if err != nil {
			h.logger.Error("failed to get storage size", zap.Error(err))
			http.Error(w, "Failed to get storage size", http.StatusInternalServerError)
			return
		}
		response["storage_bytes"] = size

		// Disk usage is unavailable on some platforms
		if usage, err := h.deps.Storage.GetDiskUsage(); err == nil {
			response["disk"] = usage
		}
	}

	if h.deps.SearchCache != nil {
		stats, err := h.deps.SearchCache.Stats()
		if err != nil {
			h.logger.Error("failed to get search cache stats", zap.Error(err))
			http.Error(w, "Failed to get search cache stats", http.StatusInternalServerError)
			return
		}
		response["search_cache"] = stats
	}

	writeJSON(w, http.StatusOK, response)
}
