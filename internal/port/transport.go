package port

import (
	"context"
)

// TransportEventKind distinguishes progress from completion
type TransportEventKind int

const (
	TransportProgress TransportEventKind = iota
	TransportComplete
)

// TransportEvent is an asynchronous notification from an in-flight fetch
type TransportEvent struct {
	TransferID string
	Attempt    string
	Kind       TransportEventKind

	// Progress fields. BytesExpected is 0 when the size is unknown.
	BytesReceived int64
	BytesExpected int64

	// Restarted is set on every event of an attempt that was given resume
	// data but had to start again from byte zero.
	Restarted bool

	// Completion fields. Location is the temp file holding the received
	// bytes; it is empty when Err is set.
	Location string
	Resumed  bool
	Err      error
}

// FetchRequest describes one fetch attempt
type FetchRequest struct {
	TransferID string
	Attempt    string
	URL        string

	// ResumeData is a token previously returned by Handle.Cancel(true).
	// Nil starts from zero.
	ResumeData []byte
}

// Transport issues cancellable, resumable byte-stream fetches
type Transport interface {
	// Fetch starts a fetch and returns immediately. Progress and the
	// single completion event are sent to events, tagged with the
	// request's TransferID and Attempt.
	Fetch(ctx context.Context, req FetchRequest, events chan<- TransportEvent) (Handle, error)

	// Discard releases any partial bytes referenced by a resume token
	Discard(resumeData []byte) error
}

// Handle is the exclusive reference to an in-flight fetch
type Handle interface {
	// Cancel stops the fetch without blocking. With produceResumeData set
	// it returns a token for the bytes received so far, or nil if the
	// server does not support partial fetches. Once Cancel returns no
	// further bytes are written and no completion is sent.
	Cancel(produceResumeData bool) []byte
}
