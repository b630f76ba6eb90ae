package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/domain/event"
	"github.com/vertextoedge/halftunes/internal/service/catalog"
	"go.uber.org/zap"
)

// fakeTransfers implements TransferController with a simple state map
type fakeTransfers struct {
	mu       sync.Mutex
	states   map[string]domain.TransferSnapshot
	startErr error
}

func newFakeTransfers() *fakeTransfers {
	return &fakeTransfers{states: make(map[string]domain.TransferSnapshot)}
}

func (f *fakeTransfers) Start(track domain.Track) (bool, error) {
	if err := track.Validate(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return false, f.startErr
	}
	if _, ok := f.states[track.ID()]; ok {
		return false, nil
	}
	f.states[track.ID()] = domain.TransferSnapshot{ID: track.ID(), Track: track, State: domain.StateActive}
	return true, nil
}

func (f *fakeTransfers) transition(id string, from, to domain.TransferState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.states[id]
	if !ok || snap.State != from {
		return false
	}
	snap.State = to
	f.states[id] = snap
	return true
}

func (f *fakeTransfers) Pause(id string) bool {
	return f.transition(id, domain.StateActive, domain.StatePaused)
}

func (f *fakeTransfers) Resume(id string) bool {
	return f.transition(id, domain.StatePaused, domain.StateActive)
}

func (f *fakeTransfers) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[id]; !ok {
		return false
	}
	delete(f.states, id)
	return true
}

func (f *fakeTransfers) Snapshot(id string) (domain.TransferSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.states[id]
	return snap, ok
}

func (f *fakeTransfers) Transfers() []domain.TransferSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TransferSnapshot, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s)
	}
	return out
}

func (f *fakeTransfers) Counts() map[string]int {
	counts := make(map[string]int)
	for _, s := range f.Transfers() {
		counts[s.State.String()]++
	}
	return counts
}

// fakeSearcher returns canned results or an error
type fakeSearcher struct {
	err error
}

func (f *fakeSearcher) Search(ctx context.Context, term string) (*catalog.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(term) == "" {
		return nil, domain.ErrInvalidInput
	}
	return &catalog.Result{
		Term:   term,
		Tracks: []domain.Track{{Name: "Get Lucky", Artist: "Daft Punk", PreviewURL: "https://audio.test/1.m4a"}},
	}, nil
}

const trackURL = "https://audio.test/1.m4a"

func newTestServer(searcher Searcher) (*Server, *fakeTransfers) {
	transfers := newFakeTransfers()
	s := New(nil, Dependencies{
		Transfers: transfers,
		Catalog:   searcher,
		Metrics:   event.NewMetricsHandler(),
	}, zap.NewNop())
	return s, transfers
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(&fakeSearcher{})

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = do(t, s, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RequestIDEchoed(t *testing.T) {
	s, _ := newTestServer(&fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestServer_Search(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		target     string
		wantStatus int
	}{
		{"ok", nil, "/search?term=daft+punk", http.StatusOK},
		{"empty term", nil, "/search", http.StatusBadRequest},
		{"superseded", domain.ErrSearchSuperseded, "/search?term=a", http.StatusConflict},
		{"upstream down", domain.NewTransportError(errors.New("boom"), 503), "/search?term=a", http.StatusBadGateway},
		{"other", errors.New("boom"), "/search?term=a", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(&fakeSearcher{err: tt.err})
			rec := do(t, s, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	s, _ := newTestServer(&fakeSearcher{})
	rec := do(t, s, http.MethodGet, "/search?term=daft+punk", "")
	var result catalog.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "daft punk", result.Term)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, trackURL, result.Tracks[0].PreviewURL)
}

func TestServer_TransferLifecycle(t *testing.T) {
	s, _ := newTestServer(&fakeSearcher{})

	rec := do(t, s, http.MethodPost, "/transfers", `{"name":"Get Lucky","artist":"Daft Punk","preview_url":"`+trackURL+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started controlResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
	assert.Equal(t, trackURL, started.ID)
	require.NotNil(t, started.Transfer)
	assert.True(t, started.Applied)
	assert.Equal(t, domain.StateActive, started.Transfer.State)

	rec = do(t, s, http.MethodPost, "/transfers/pause?url="+trackURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var paused controlResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&paused))
	assert.True(t, paused.Applied)
	assert.Equal(t, domain.StatePaused, paused.Transfer.State)

	rec = do(t, s, http.MethodPost, "/transfers/pause?url="+trackURL, "")
	var again controlResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&again))
	assert.False(t, again.Applied, "pausing a paused transfer is a no-op")

	rec = do(t, s, http.MethodGet, "/transfers/progress?url="+trackURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"paused"`)

	rec = do(t, s, http.MethodGet, "/transfers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.TransferSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	rec = do(t, s, http.MethodPost, "/transfers/cancel?url="+trackURL, "")
	var cancelled controlResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cancelled))
	assert.True(t, cancelled.Applied)
	assert.Nil(t, cancelled.Transfer)

	rec = do(t, s, http.MethodGet, "/transfers/progress?url="+trackURL, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DuplicateStartIsNotApplied(t *testing.T) {
	s, _ := newTestServer(&fakeSearcher{})
	body := `{"name":"Get Lucky","preview_url":"` + trackURL + `"}`

	rec := do(t, s, http.MethodPost, "/transfers", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, s, http.MethodPost, "/transfers/pause?url="+trackURL, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/transfers", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var dup controlResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dup))
	assert.False(t, dup.Applied)
	require.NotNil(t, dup.Transfer)
	assert.Equal(t, domain.StatePaused, dup.Transfer.State, "existing transfer is left alone")
}

func TestServer_StartWhileShuttingDown(t *testing.T) {
	s, transfers := newTestServer(&fakeSearcher{})
	transfers.startErr = domain.ErrManagerStopped

	rec := do(t, s, http.MethodPost, "/transfers", `{"preview_url":"`+trackURL+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_TransferBadRequests(t *testing.T) {
	s, _ := newTestServer(&fakeSearcher{})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"bad json", http.MethodPost, "/transfers", "{", http.StatusBadRequest},
		{"invalid track", http.MethodPost, "/transfers", `{"preview_url":"mailto:x"}`, http.StatusBadRequest},
		{"missing url", http.MethodPost, "/transfers/resume", "", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/transfers/cancel?url=x", "", http.StatusMethodNotAllowed},
		{"progress missing url", http.MethodGet, "/transfers/progress", "", http.StatusBadRequest},
		{"list wrong method", http.MethodDelete, "/transfers", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestServer_DebugStats(t *testing.T) {
	s, transfers := newTestServer(&fakeSearcher{})
	applied, err := transfers.Start(domain.Track{PreviewURL: trackURL})
	require.NoError(t, err)
	require.True(t, applied)

	rec := do(t, s, http.MethodGet, "/debug/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.JSONEq(t, `{"active":1}`, string(body["transfers"]))
	assert.Contains(t, body, "events")
	assert.NotContains(t, body, "search_cache")
}
