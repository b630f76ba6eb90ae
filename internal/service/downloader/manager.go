package downloader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/domain/event"
	"github.com/vertextoedge/halftunes/internal/port"
	"go.uber.org/zap"
)

// Config contains download manager configuration
type Config struct {
	// RegistryShards is the number of independently locked registry buckets
	RegistryShards int

	// EventShards is the number of goroutines processing transport events
	EventShards int

	// EventBuffer is the capacity of each event shard's channel
	EventBuffer int
}

// DefaultConfig returns default manager configuration
func DefaultConfig() *Config {
	return &Config{
		RegistryShards: 32,
		EventShards:    4,
		EventBuffer:    64,
	}
}

// Manager owns every Transfer and drives it through its lifecycle.
// All control operations return without waiting on the network.
type Manager struct {
	config     *Config
	registry   *Registry
	transport  port.Transport
	storage    port.Storage
	dispatcher event.EventDispatcher
	logger     *zap.Logger

	// events are fed by the transport; an identity always maps to the
	// same channel so its events are handled in order.
	events []chan port.TransportEvent

	// fetchCtx bounds every fetch issued by the manager
	fetchCtx  context.Context
	stopFetch context.CancelFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// lifecycle is held for reading while a fetch is issued so that
	// shutdown sees every transfer it has to cancel
	lifecycle sync.RWMutex
	stopped   bool
}

// New creates a new download Manager
func New(cfg *Config, transport port.Transport, storage port.Storage, dispatcher event.EventDispatcher, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RegistryShards <= 0 {
		cfg.RegistryShards = 32
	}
	if cfg.EventShards <= 0 {
		cfg.EventShards = 4
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}

	events := make([]chan port.TransportEvent, cfg.EventShards)
	for i := range events {
		events[i] = make(chan port.TransportEvent, cfg.EventBuffer)
	}

	fetchCtx, stopFetch := context.WithCancel(context.Background())

	return &Manager{
		config:     cfg,
		registry:   NewRegistry(cfg.RegistryShards),
		transport:  transport,
		storage:    storage,
		dispatcher: dispatcher,
		logger:     logger.Named("downloader"),
		events:     events,
		fetchCtx:   fetchCtx,
		stopFetch:  stopFetch,
	}
}

// Run processes transport events until ctx is done or Stop is called.
// On return every remaining transfer has been cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("download manager already running")
	}
	if m.isStopped() {
		m.mu.Unlock()
		return domain.ErrManagerStopped
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.logger.Info("download manager started",
		zap.Int("registry_shards", m.config.RegistryShards),
		zap.Int("event_shards", m.config.EventShards))

	for _, ch := range m.events {
		m.wg.Add(1)
		go m.eventLoop(ctx, ch)
	}

	<-ctx.Done()
	m.wg.Wait()

	m.lifecycle.Lock()
	m.stopped = true
	m.lifecycle.Unlock()

	cancelled := 0
	m.registry.Range(func(id string, _ *Entry) bool {
		if m.Cancel(id) {
			cancelled++
		}
		return true
	})
	m.stopFetch()

	m.logger.Info("download manager stopped", zap.Int("cancelled", cancelled))
	return nil
}

// Stop stops the manager
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
}

func (m *Manager) isStopped() bool {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	return m.stopped
}

func (m *Manager) eventLoop(ctx context.Context, ch <-chan port.TransportEvent) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) eventsFor(id string) chan<- port.TransportEvent {
	return m.events[shardIndex(id, len(m.events))]
}

// Start begins downloading track. A transfer that already exists for
// the track's identity is left alone and Start reports false. It fails
// for an invalid track and once Run has returned.
func (m *Manager) Start(track domain.Track) (bool, error) {
	if err := track.Validate(); err != nil {
		return false, err
	}
	id := track.ID()

	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.stopped {
		return false, domain.ErrManagerStopped
	}

	e := newEntry(newTransfer(track))
	e.mu.Lock()
	if _, loaded := m.registry.PutIfAbsent(id, e); loaded {
		e.mu.Unlock()
		m.logger.Debug("start ignored", zap.String("id", id), zap.Error(domain.ErrDuplicateStart))
		return false, nil
	}

	t := e.transfer
	if err := m.fetchLocked(id, t, nil); err != nil {
		t.State = domain.StateFailed
		e.removed = true
		m.registry.Remove(id, e)
		e.mu.Unlock()

		m.logger.Warn("failed to issue fetch", zap.String("id", id), zap.Error(err))
		m.dispatcher.Dispatch(event.NewTransferStateChanged(id, domain.StateQueued, domain.StateFailed, 0))
		m.dispatcher.Dispatch(event.NewTransferFailed(id, err))
		return true, nil
	}
	e.mu.Unlock()

	m.logger.Debug("transfer started", zap.String("id", id), zap.String("name", track.Name))
	m.dispatcher.Dispatch(event.NewTransferStateChanged(id, domain.StateQueued, domain.StateActive, 0))
	return true, nil
}

// fetchLocked issues a new attempt and makes t Active
func (m *Manager) fetchLocked(id string, t *Transfer, resumeData []byte) error {
	attempt := uuid.NewString()
	h, err := m.transport.Fetch(m.fetchCtx, port.FetchRequest{
		TransferID: id,
		Attempt:    attempt,
		URL:        t.Track.PreviewURL,
		ResumeData: resumeData,
	}, m.eventsFor(id))
	if err != nil {
		return err
	}

	t.Handle = h
	t.Attempt = attempt
	t.State = domain.StateActive
	t.UpdatedAt = time.Now()
	return nil
}

// Pause stops an Active transfer, keeping a resume token when the
// server supports partial fetches. It reports whether the transfer was
// paused.
func (m *Manager) Pause(id string) bool {
	e, ok := m.registry.Get(id)
	if !ok {
		m.logger.Debug("pause ignored", zap.String("id", id), zap.Error(domain.ErrNotFound))
		return false
	}

	e.mu.Lock()
	t := e.transfer
	if e.removed || t.State != domain.StateActive {
		e.mu.Unlock()
		m.logger.Debug("pause ignored", zap.String("id", id), zap.Error(domain.ErrInvalidStateTransition))
		return false
	}

	t.ResumeData = t.Handle.Cancel(true)
	t.Handle = nil
	t.State = domain.StatePaused
	t.UpdatedAt = time.Now()
	progress, resumable := t.Progress, t.ResumeData != nil
	e.mu.Unlock()

	m.logger.Debug("transfer paused",
		zap.String("id", id),
		zap.Float64("progress", progress),
		zap.Bool("resumable", resumable))
	m.dispatcher.Dispatch(event.NewTransferStateChanged(id, domain.StateActive, domain.StatePaused, progress))
	return true
}

// Resume restarts a Paused transfer, from the saved offset when a
// resume token exists and from zero otherwise.
func (m *Manager) Resume(id string) bool {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.stopped {
		m.logger.Debug("resume ignored", zap.String("id", id), zap.Error(domain.ErrManagerStopped))
		return false
	}

	e, ok := m.registry.Get(id)
	if !ok {
		m.logger.Debug("resume ignored", zap.String("id", id), zap.Error(domain.ErrNotFound))
		return false
	}

	e.mu.Lock()
	t := e.transfer
	if e.removed || t.State != domain.StatePaused {
		e.mu.Unlock()
		m.logger.Debug("resume ignored", zap.String("id", id), zap.Error(domain.ErrInvalidStateTransition))
		return false
	}

	token := t.ResumeData
	if err := m.fetchLocked(id, t, token); err != nil {
		t.ResumeData = nil
		t.State = domain.StateFailed
		e.removed = true
		m.registry.Remove(id, e)
		progress := t.Progress
		e.mu.Unlock()

		m.discard(id, token)
		m.logger.Warn("failed to issue fetch", zap.String("id", id), zap.Error(err))
		m.dispatcher.Dispatch(event.NewTransferStateChanged(id, domain.StatePaused, domain.StateFailed, progress))
		m.dispatcher.Dispatch(event.NewTransferFailed(id, err))
		return true
	}

	t.ResumeData = nil
	t.Resumed = token != nil
	if token == nil {
		t.restart()
	}
	progress := t.Progress
	e.mu.Unlock()

	m.logger.Debug("transfer resumed", zap.String("id", id), zap.Bool("from_offset", token != nil))
	m.dispatcher.Dispatch(event.NewTransferStateChanged(id, domain.StatePaused, domain.StateActive, progress))
	return true
}

// Cancel stops a transfer in any non-terminal state, discards its
// partial bytes and forgets it.
func (m *Manager) Cancel(id string) bool {
	e, ok := m.registry.Get(id)
	if !ok {
		m.logger.Debug("cancel ignored", zap.String("id", id), zap.Error(domain.ErrNotFound))
		return false
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return false
	}

	t := e.transfer
	from := t.State
	var token []byte
	switch t.State {
	case domain.StateActive:
		t.Handle.Cancel(false)
		t.Handle = nil
	case domain.StatePaused:
		token = t.ResumeData
		t.ResumeData = nil
	}
	t.State = domain.StateCancelled
	e.removed = true
	m.registry.Remove(id, e)
	progress := t.Progress
	e.mu.Unlock()

	m.discard(id, token)
	m.logger.Debug("transfer cancelled", zap.String("id", id), zap.Stringer("from", from))
	m.dispatcher.Dispatch(event.NewTransferStateChanged(id, from, domain.StateCancelled, progress))
	return true
}

func (m *Manager) discard(id string, token []byte) {
	if token == nil {
		return
	}
	if err := m.transport.Discard(token); err != nil {
		m.logger.Warn("failed to discard partial data", zap.String("id", id), zap.Error(err))
	}
}

// Progress returns the fraction received for id
func (m *Manager) Progress(id string) (float64, bool) {
	snap, ok := m.Snapshot(id)
	if !ok {
		return 0, false
	}
	return snap.Progress, true
}

// State returns the lifecycle state for id
func (m *Manager) State(id string) (domain.TransferState, bool) {
	snap, ok := m.Snapshot(id)
	if !ok {
		return 0, false
	}
	return snap.State, true
}

// Snapshot returns a copy of the transfer for id
func (m *Manager) Snapshot(id string) (domain.TransferSnapshot, bool) {
	e, ok := m.registry.Get(id)
	if !ok {
		return domain.TransferSnapshot{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return domain.TransferSnapshot{}, false
	}
	return e.transfer.snapshot(), true
}

// Transfers returns snapshots of every live transfer ordered by track
// index, then identity
func (m *Manager) Transfers() []domain.TransferSnapshot {
	var snaps []domain.TransferSnapshot
	m.registry.Range(func(_ string, e *Entry) bool {
		e.mu.Lock()
		if !e.removed {
			snaps = append(snaps, e.transfer.snapshot())
		}
		e.mu.Unlock()
		return true
	})

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Track.Index != snaps[j].Track.Index {
			return snaps[i].Track.Index < snaps[j].Track.Index
		}
		return snaps[i].ID < snaps[j].ID
	})
	return snaps
}

// Counts returns the number of live transfers per state name
func (m *Manager) Counts() map[string]int {
	counts := make(map[string]int)
	for _, snap := range m.Transfers() {
		counts[snap.State.String()]++
	}
	return counts
}

// LiveIDs returns the identities of every Active or Paused transfer.
// Their partial files are still in use.
func (m *Manager) LiveIDs() []string {
	var ids []string
	m.registry.Range(func(id string, e *Entry) bool {
		e.mu.Lock()
		if !e.removed {
			ids = append(ids, id)
		}
		e.mu.Unlock()
		return true
	})
	return ids
}

// handleEvent applies one transport event
func (m *Manager) handleEvent(ev port.TransportEvent) {
	switch ev.Kind {
	case port.TransportProgress:
		m.onProgress(ev)
	case port.TransportComplete:
		m.onComplete(ev)
	default:
		m.logger.Warn("unknown transport event", zap.Int("kind", int(ev.Kind)))
	}
}

func (m *Manager) onProgress(ev port.TransportEvent) {
	e, ok := m.registry.Get(ev.TransferID)
	if !ok {
		return
	}

	e.mu.Lock()
	t := e.transfer
	if e.removed || t.State != domain.StateActive || t.Attempt != ev.Attempt {
		e.mu.Unlock()
		return
	}
	if ev.Restarted && t.Resumed {
		t.restart()
		m.logger.Info("resume data not honoured, progress restarts from zero", zap.String("id", ev.TransferID))
	}
	t.applyProgress(ev.BytesReceived, ev.BytesExpected)
	progress := t.Progress
	e.mu.Unlock()

	m.dispatcher.Dispatch(event.NewTransferProgressed(ev.TransferID, progress, ev.BytesReceived, ev.BytesExpected))
}

func (m *Manager) onComplete(ev port.TransportEvent) {
	id := ev.TransferID

	e, ok := m.registry.Get(id)
	if !ok {
		m.dropStale(ev)
		return
	}

	e.mu.Lock()
	t := e.transfer
	if e.removed || t.State != domain.StateActive || t.Attempt != ev.Attempt {
		e.mu.Unlock()
		m.dropStale(ev)
		return
	}

	err := ev.Err
	var location string
	var size int64
	if err == nil {
		location, size, err = m.storage.Persist(id, ev.Location)
		if err != nil {
			err = domain.NewStorageError(err, ev.Location)
			_ = m.storage.DeleteTempFile(ev.Location)
		}
	}

	t.Handle = nil
	if ev.Restarted {
		t.Resumed = false
	}
	if err != nil {
		t.State = domain.StateFailed
	} else {
		t.State = domain.StateCompleted
		t.Progress = 1.0
		t.BytesReceived = size
	}
	t.UpdatedAt = time.Now()
	e.removed = true
	m.registry.Remove(id, e)
	to, progress := t.State, t.Progress
	resumed, duration := t.Resumed, time.Since(t.StartedAt)
	e.mu.Unlock()

	m.dispatcher.Dispatch(event.NewTransferStateChanged(id, domain.StateActive, to, progress))
	if err != nil {
		m.dispatcher.Dispatch(event.NewTransferFailed(id, err))
		return
	}
	m.dispatcher.Dispatch(event.NewTransferCompleted(id, location, size, resumed, duration))
}

// dropStale releases the bytes of a completion nobody is waiting for
func (m *Manager) dropStale(ev port.TransportEvent) {
	m.logger.Debug("stale completion ignored",
		zap.String("id", ev.TransferID),
		zap.String("attempt", ev.Attempt))

	if ev.Err == nil && ev.Location != "" {
		if err := m.storage.DeleteTempFile(ev.Location); err != nil {
			m.logger.Warn("failed to remove orphaned temp file", zap.String("path", ev.Location), zap.Error(err))
		}
	}
}
