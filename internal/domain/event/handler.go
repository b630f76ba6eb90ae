package event

import (
	"sync/atomic"

	"github.com/vertextoedge/halftunes/internal/domain"
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferStateChanged:
		h.logger.Info("transfer state changed",
			zap.String("id", e.ID),
			zap.Stringer("from", e.From),
			zap.Stringer("to", e.To),
			zap.Float64("progress", e.Progress),
		)
	case TransferProgressed:
		h.logger.Debug("transfer progressed",
			zap.String("id", e.ID),
			zap.Float64("progress", e.Progress),
			zap.Int64("bytes_received", e.BytesReceived),
			zap.Int64("bytes_expected", e.BytesExpected),
		)
	case TransferCompleted:
		h.logger.Info("transfer completed",
			zap.String("id", e.ID),
			zap.String("location", e.Location),
			zap.Int64("size", e.Size),
			zap.Bool("resumed", e.Resumed),
			zap.Duration("duration", e.Duration),
		)
	case TransferFailed:
		h.logger.Warn("transfer failed",
			zap.String("id", e.ID),
			zap.String("kind", e.Kind),
			zap.Error(e.Err),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}

// MetricsHandler collects metrics from events
type MetricsHandler struct {
	transfersCompleted atomic.Int64
	transfersFailed    atomic.Int64
	transfersCancelled atomic.Int64
	transfersPaused    atomic.Int64
	transfersResumed   atomic.Int64
	bytesCompleted     atomic.Int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferCompleted:
		h.transfersCompleted.Add(1)
		h.bytesCompleted.Add(e.Size)
		if e.Resumed {
			h.transfersResumed.Add(1)
		}
	case TransferFailed:
		h.transfersFailed.Add(1)
	case TransferStateChanged:
		switch e.To {
		case domain.StateCancelled:
			h.transfersCancelled.Add(1)
		case domain.StatePaused:
			h.transfersPaused.Add(1)
		}
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameTransferCompleted,
		NameTransferFailed,
		NameTransferStateChanged,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	return map[string]int64{
		"transfers_completed": h.transfersCompleted.Load(),
		"transfers_failed":    h.transfersFailed.Load(),
		"transfers_cancelled": h.transfersCancelled.Load(),
		"transfers_paused":    h.transfersPaused.Load(),
		"transfers_resumed":   h.transfersResumed.Load(),
		"bytes_completed":     h.bytesCompleted.Load(),
	}
}
