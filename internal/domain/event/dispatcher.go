package event

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles.
	// "*" subscribes to every event.
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	Dispatch(event DomainEvent)
	DispatchAll(events []DomainEvent)
	Subscribe(handler EventHandler)
	Unsubscribe(handler EventHandler)
}

// InMemoryDispatcher delivers events to subscribed handlers in the
// order they were dispatched. A synchronous dispatcher runs handlers on
// the caller's goroutine. A queued dispatcher hands events to a single
// delivery goroutine so a slow handler never holds up the caller, and
// must be closed.
type InMemoryDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *zap.Logger

	queue     chan DomainEvent
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewInMemoryDispatcher creates a synchronous dispatcher. Handler errors
// and panics are logged and never reach the caller.
func NewInMemoryDispatcher(logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		logger:   logger.Named("events"),
	}
}

// NewQueuedDispatcher creates a dispatcher whose handlers run on one
// background goroutine fed by a queue of the given size. Dispatch blocks
// only while the queue is full.
func NewQueuedDispatcher(size int, logger *zap.Logger) *InMemoryDispatcher {
	d := NewInMemoryDispatcher(logger)
	d.queue = make(chan DomainEvent, size)
	d.closing = make(chan struct{})
	d.done = make(chan struct{})
	go d.deliverQueued()
	return d
}

// Close stops a queued dispatcher after the events already queued have
// been delivered. Events dispatched after Close are dropped.
func (d *InMemoryDispatcher) Close() {
	if d.queue == nil {
		return
	}
	d.closeOnce.Do(func() { close(d.closing) })
	<-d.done
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	if d.queue == nil {
		d.deliver(event)
		return
	}

	select {
	case d.queue <- event:
	case <-d.closing:
		d.logger.Debug("event dropped after close", zap.String("event", event.EventName()))
	}
}

// DispatchAll dispatches multiple events
func (d *InMemoryDispatcher) DispatchAll(events []DomainEvent) {
	for _, event := range events {
		d.Dispatch(event)
	}
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		d.handlers[name] = append(d.handlers[name], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		handlers := d.handlers[name]
		for i, h := range handlers {
			if h == handler {
				d.handlers[name] = append(handlers[:i:i], handlers[i+1:]...)
				break
			}
		}
	}
}

func (d *InMemoryDispatcher) deliverQueued() {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.closing:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *InMemoryDispatcher) deliver(event DomainEvent) {
	for _, h := range d.handlersFor(event.EventName()) {
		if err := d.invoke(h, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event", event.EventName()),
				zap.String("id", event.TransferID()),
				zap.Error(err))
		}
	}
}

func (d *InMemoryDispatcher) handlersFor(name string) []EventHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	named := d.handlers[name]
	all := d.handlers["*"]
	combined := make([]EventHandler, 0, len(named)+len(all))
	combined = append(combined, named...)
	return append(combined, all...)
}

func (d *InMemoryDispatcher) invoke(h EventHandler, event DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(event)
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

func (d *NullDispatcher) Dispatch(event DomainEvent)       {}
func (d *NullDispatcher) DispatchAll(events []DomainEvent) {}
func (d *NullDispatcher) Subscribe(handler EventHandler)   {}
func (d *NullDispatcher) Unsubscribe(handler EventHandler) {}
