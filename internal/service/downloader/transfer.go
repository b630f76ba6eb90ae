package downloader

import (
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/port"
)

// Transfer is the mutable lifecycle record of one track download.
// It is only touched while holding its Entry's lock.
//
// Handle is set iff State is Active. ResumeData is set only while Paused.
type Transfer struct {
	Track      domain.Track
	State      domain.TransferState
	Progress   float64
	ResumeData []byte
	Handle     port.Handle

	// Attempt identifies the current Active period. Transport events
	// carrying any other attempt are stale.
	Attempt string

	BytesReceived int64
	BytesExpected int64
	Resumed       bool

	StartedAt time.Time
	UpdatedAt time.Time
}

func newTransfer(track domain.Track) *Transfer {
	now := time.Now()
	return &Transfer{
		Track:     track,
		State:     domain.StateQueued,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// applyProgress records a byte count. The fraction only moves forward
// and an unknown total leaves it untouched.
func (t *Transfer) applyProgress(received, expected int64) {
	t.BytesReceived = received
	t.BytesExpected = expected
	t.UpdatedAt = time.Now()

	if expected <= 0 {
		return
	}
	p := float64(received) / float64(expected)
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	if p > t.Progress {
		t.Progress = p
	}
}

// restart forgets the bytes of earlier attempts
func (t *Transfer) restart() {
	t.Progress = 0
	t.BytesReceived = 0
	t.Resumed = false
	t.UpdatedAt = time.Now()
}

func (t *Transfer) snapshot() domain.TransferSnapshot {
	return domain.TransferSnapshot{
		ID:            t.Track.ID(),
		Track:         t.Track,
		State:         t.State,
		Progress:      t.Progress,
		BytesReceived: t.BytesReceived,
		BytesExpected: t.BytesExpected,
		Resumable:     t.ResumeData != nil,
	}
}
