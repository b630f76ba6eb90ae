package event

import (
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
)

// Event names
const (
	NameTransferStateChanged = "transfer.state_changed"
	NameTransferProgressed   = "transfer.progressed"
	NameTransferCompleted    = "transfer.completed"
	NameTransferFailed       = "transfer.failed"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
	// TransferID returns the identity of the transfer the event is about
	TransferID() string
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
	ID        string
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// TransferID returns the transfer identity
func (e BaseEvent) TransferID() string {
	return e.ID
}

func newBase(id string) BaseEvent {
	return BaseEvent{Timestamp: time.Now(), ID: id}
}

// TransferStateChanged is raised on every lifecycle transition
type TransferStateChanged struct {
	BaseEvent
	From     domain.TransferState
	To       domain.TransferState
	Progress float64
}

// EventName returns the event name
func (e TransferStateChanged) EventName() string {
	return NameTransferStateChanged
}

// NewTransferStateChanged creates a new TransferStateChanged event
func NewTransferStateChanged(id string, from, to domain.TransferState, progress float64) TransferStateChanged {
	return TransferStateChanged{
		BaseEvent: newBase(id),
		From:      from,
		To:        to,
		Progress:  progress,
	}
}

// TransferProgressed is raised when an active transfer receives bytes.
// Progress is -1 when the expected size is unknown.
type TransferProgressed struct {
	BaseEvent
	Progress      float64
	BytesReceived int64
	BytesExpected int64
}

// EventName returns the event name
func (e TransferProgressed) EventName() string {
	return NameTransferProgressed
}

// Indeterminate returns true if the total size is unknown
func (e TransferProgressed) Indeterminate() bool {
	return e.BytesExpected <= 0
}

// NewTransferProgressed creates a new TransferProgressed event
func NewTransferProgressed(id string, progress float64, received, expected int64) TransferProgressed {
	return TransferProgressed{
		BaseEvent:     newBase(id),
		Progress:      progress,
		BytesReceived: received,
		BytesExpected: expected,
	}
}

// TransferCompleted is raised when a transfer's bytes are stored locally
type TransferCompleted struct {
	BaseEvent
	Location string
	Size     int64
	Resumed  bool
	Duration time.Duration
}

// EventName returns the event name
func (e TransferCompleted) EventName() string {
	return NameTransferCompleted
}

// NewTransferCompleted creates a new TransferCompleted event
func NewTransferCompleted(id, location string, size int64, resumed bool, duration time.Duration) TransferCompleted {
	return TransferCompleted{
		BaseEvent: newBase(id),
		Location:  location,
		Size:      size,
		Resumed:   resumed,
		Duration:  duration,
	}
}

// TransferFailed is raised when a transport or storage failure ends a transfer
type TransferFailed struct {
	BaseEvent
	Err  error
	Kind string
}

// EventName returns the event name
func (e TransferFailed) EventName() string {
	return NameTransferFailed
}

// NewTransferFailed creates a new TransferFailed event
func NewTransferFailed(id string, err error) TransferFailed {
	return TransferFailed{
		BaseEvent: newBase(id),
		Err:       err,
		Kind:      domain.FailureKind(err),
	}
}
