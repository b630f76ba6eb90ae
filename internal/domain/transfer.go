package domain

import "fmt"

// TransferState is the lifecycle state of a transfer
type TransferState int

const (
	StateQueued TransferState = iota
	StateActive
	StatePaused
	StateCompleted
	StateCancelled
	StateFailed
)

var stateNames = map[TransferState]string{
	StateQueued:    "queued",
	StateActive:    "active",
	StatePaused:    "paused",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
	StateFailed:    "failed",
}

// String returns the lowercase state name
func (s TransferState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsTerminal returns true for states a transfer never leaves
func (s TransferState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler
func (s TransferState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *TransferState) UnmarshalText(text []byte) error {
	state, err := ParseTransferState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParseTransferState converts a state name back to a TransferState
func ParseTransferState(name string) (TransferState, error) {
	for state, n := range stateNames {
		if n == name {
			return state, nil
		}
	}
	return StateQueued, fmt.Errorf("%w: unknown transfer state %q", ErrInvalidInput, name)
}

// TransferSnapshot is a point-in-time copy of a transfer
type TransferSnapshot struct {
	ID            string        `json:"id"`
	Track         Track         `json:"track"`
	State         TransferState `json:"state"`
	Progress      float64       `json:"progress"`
	BytesReceived int64         `json:"bytes_received"`
	BytesExpected int64         `json:"bytes_expected"`
	Resumable     bool          `json:"resumable"`
}
