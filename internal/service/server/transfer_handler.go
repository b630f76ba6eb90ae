package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vertextoedge/halftunes/internal/domain"
	"go.uber.org/zap"
)

const maxTrackBody = 64 << 10

// TransferHandler exposes download control
type TransferHandler struct {
	transfers TransferController
	logger    *zap.Logger
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(transfers TransferController, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    logger,
	}
}

// controlResponse reports the outcome of pause, resume or cancel.
// Applied is false when the transfer was missing or in the wrong state.
type controlResponse struct {
	ID       string                   `json:"id"`
	Applied  bool                     `json:"applied"`
	Transfer *domain.TransferSnapshot `json:"transfer,omitempty"`
}

// HandleTransfers lists transfers (GET) or starts one (POST)
func (h *TransferHandler) HandleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.transfers.Transfers())
	case http.MethodPost:
		h.handleStart(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TransferHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var track domain.Track
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTrackBody)).Decode(&track); err != nil {
		http.Error(w, "Invalid track JSON", http.StatusBadRequest)
		return
	}

	applied, err := h.transfers.Start(track)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrManagerStopped):
			http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		default:
			h.logger.Error("failed to start transfer", zap.Error(err))
			http.Error(w, "Failed to start transfer", http.StatusInternalServerError)
		}
		return
	}

	resp := controlResponse{ID: track.ID(), Applied: applied}
	if snap, ok := h.transfers.Snapshot(track.ID()); ok {
		resp.Transfer = &snap
	}
	// an existing transfer for the same identity is reported as is
	status := http.StatusAccepted
	if !applied {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// HandlePause pauses the transfer named by ?url=
func (h *TransferHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.transfers.Pause)
}

// HandleResume resumes the transfer named by ?url=
func (h *TransferHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.transfers.Resume)
}

// HandleCancel cancels the transfer named by ?url=
func (h *TransferHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.transfers.Cancel)
}

func (h *TransferHandler) control(w http.ResponseWriter, r *http.Request, op func(id string) bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("url")
	if id == "" {
		http.Error(w, "url parameter is required", http.StatusBadRequest)
		return
	}

	resp := controlResponse{ID: id, Applied: op(id)}
	if snap, ok := h.transfers.Snapshot(id); ok {
		resp.Transfer = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleProgress reports the progress of the transfer named by ?url=
func (h *TransferHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("url")
	if id == "" {
		http.Error(w, "url parameter is required", http.StatusBadRequest)
		return
	}

	snap, ok := h.transfers.Snapshot(id)
	if !ok {
		http.Error(w, "Transfer not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       snap.ID,
		"state":    snap.State,
		"progress": snap.Progress,
	})
}
