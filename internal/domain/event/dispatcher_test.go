package event

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/halftunes/internal/domain"
)

type recordingHandler struct {
	mu     sync.Mutex
	names  []string
	events []DomainEvent
}

func (h *recordingHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) HandledEvents() []string { return h.names }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestInMemoryDispatcher_RoutesByName(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())
	completed := &recordingHandler{names: []string{NameTransferCompleted}}
	all := &recordingHandler{names: []string{"*"}}
	d.Subscribe(completed)
	d.Subscribe(all)

	d.DispatchAll([]DomainEvent{
		NewTransferProgressed("a", 0.5, 50, 100),
		NewTransferCompleted("a", "/files/a", 100, false, time.Second),
	})

	assert.Equal(t, 1, completed.count())
	assert.Equal(t, 2, all.count())

	d.Unsubscribe(all)
	d.Dispatch(NewTransferCompleted("b", "/files/b", 1, false, 0))
	assert.Equal(t, 2, completed.count())
	assert.Equal(t, 2, all.count())
}

func TestQueuedDispatcher_PreservesOrder(t *testing.T) {
	d := NewQueuedDispatcher(4, zap.NewNop())
	h := &recordingHandler{names: []string{"*"}}
	d.Subscribe(h)

	for i := 0; i < 20; i++ {
		d.Dispatch(NewTransferProgressed("a", float64(i)/20, int64(i), 20))
	}
	d.Close()

	require.Equal(t, 20, h.count())
	for i, e := range h.events {
		assert.Equal(t, int64(i), e.(TransferProgressed).BytesReceived)
	}

	// Dispatch after Close neither blocks nor delivers.
	d.Dispatch(NewTransferCompleted("a", "/x", 1, false, 0))
	d.Close()
	assert.Equal(t, 20, h.count())
}

type failingHandler struct {
	panics bool
}

func (h failingHandler) Handle(event DomainEvent) error {
	if h.panics {
		panic("boom")
	}
	return errors.New("boom")
}

func (h failingHandler) HandledEvents() []string { return []string{"*"} }

func TestInMemoryDispatcher_HandlerFailuresAreContained(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())
	d.Subscribe(failingHandler{})
	d.Subscribe(failingHandler{panics: true})
	h := &recordingHandler{names: []string{"*"}}
	d.Subscribe(h)

	assert.NotPanics(t, func() {
		d.Dispatch(NewTransferStateChanged("a", domain.StateQueued, domain.StateActive, 0))
	})
	assert.Equal(t, 1, h.count())
}

func TestMetricsHandler(t *testing.T) {
	h := NewMetricsHandler()
	d := NewInMemoryDispatcher(zap.NewNop())
	d.Subscribe(h)

	d.Dispatch(NewTransferCompleted("a", "/x", 100, true, 0))
	d.Dispatch(NewTransferCompleted("b", "/y", 50, false, 0))
	d.Dispatch(NewTransferFailed("c", domain.NewTransportError(nil, 500)))
	d.Dispatch(NewTransferStateChanged("d", domain.StateActive, domain.StatePaused, 0.3))
	d.Dispatch(NewTransferStateChanged("d", domain.StatePaused, domain.StateCancelled, 0.3))
	d.Dispatch(NewTransferProgressed("e", 0.1, 1, 10))

	m := h.GetMetrics()
	assert.Equal(t, int64(2), m["transfers_completed"])
	assert.Equal(t, int64(1), m["transfers_resumed"])
	assert.Equal(t, int64(150), m["bytes_completed"])
	assert.Equal(t, int64(1), m["transfers_failed"])
	assert.Equal(t, int64(1), m["transfers_paused"])
	assert.Equal(t, int64(1), m["transfers_cancelled"])
}

func TestLoggingHandler(t *testing.T) {
	h := NewLoggingHandler(zap.NewNop())
	events := []DomainEvent{
		NewTransferStateChanged("a", domain.StateQueued, domain.StateActive, 0),
		NewTransferProgressed("a", 0.2, 20, 100),
		NewTransferCompleted("a", "/x", 100, false, time.Second),
		NewTransferFailed("a", errors.New("boom")),
	}
	for _, e := range events {
		require.NoError(t, h.Handle(e))
	}
	assert.Equal(t, []string{"*"}, h.HandledEvents())
}

func TestTransferFailed_Kind(t *testing.T) {
	assert.Equal(t, "storage", NewTransferFailed("a", domain.NewStorageError(nil, "/x")).Kind)
	assert.Equal(t, "transport", NewTransferFailed("a", domain.NewTransportError(nil, 404)).Kind)
}

func TestChannelHandler_DropsProgressWhenFull(t *testing.T) {
	h := NewChannelHandler(1)
	defer h.Close()

	require.NoError(t, h.Handle(NewTransferProgressed("a", 0.1, 1, 10)))
	// Buffer is full: progress is dropped without blocking.
	require.NoError(t, h.Handle(NewTransferProgressed("a", 0.2, 2, 10)))

	got := <-h.Events()
	assert.Equal(t, 0.1, got.(TransferProgressed).Progress)

	done := make(chan struct{})
	go func() {
		_ = h.Handle(NewTransferCompleted("a", "/x", 10, false, 0))
		_ = h.Handle(NewTransferCompleted("b", "/y", 10, false, 0))
		close(done)
	}()

	first := <-h.Events()
	second := <-h.Events()
	<-done
	assert.Equal(t, "a", first.TransferID())
	assert.Equal(t, "b", second.TransferID())
}

func TestChannelHandler_CloseUnblocks(t *testing.T) {
	h := NewChannelHandler(0)
	done := make(chan struct{})
	go func() {
		_ = h.Handle(NewTransferCompleted("a", "/x", 10, false, 0))
		close(done)
	}()
	h.Close()
	h.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after Close")
	}
}

func TestChannelHandler_ConcurrentClose(t *testing.T) {
	for i := 0; i < 100; i++ {
		h := NewChannelHandler(0)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				assert.NotPanics(t, h.Close)
			}()
		}
		close(start)
		wg.Wait()

		require.NoError(t, h.Handle(NewTransferCompleted("a", "/x", 10, false, 0)))
	}
}
