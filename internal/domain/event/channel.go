package event

import "sync"

// ChannelHandler redelivers events onto a channel so that a single
// presentation goroutine can apply them in order. Progress events are
// dropped when the channel is full; every other event blocks until
// it is accepted or the handler is closed.
type ChannelHandler struct {
	events    chan DomainEvent
	done      chan struct{}
	closeOnce sync.Once
	names     []string
}

// NewChannelHandler creates a ChannelHandler with the given buffer size.
// With no names it receives every event.
func NewChannelHandler(buffer int, names ...string) *ChannelHandler {
	if len(names) == 0 {
		names = []string{"*"}
	}
	return &ChannelHandler{
		events: make(chan DomainEvent, buffer),
		done:   make(chan struct{}),
		names:  names,
	}
}

// Events returns the receive side of the channel
func (h *ChannelHandler) Events() <-chan DomainEvent {
	return h.events
}

// Close stops delivery. Pending sends are abandoned. It is safe to call
// from several goroutines.
func (h *ChannelHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Handle forwards the event to the channel
func (h *ChannelHandler) Handle(event DomainEvent) error {
	if _, ok := event.(TransferProgressed); ok {
		select {
		case h.events <- event:
		case <-h.done:
		default:
		}
		return nil
	}

	select {
	case h.events <- event:
	case <-h.done:
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *ChannelHandler) HandledEvents() []string {
	return h.names
}
