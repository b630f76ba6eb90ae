package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/port"
	"go.uber.org/zap"
)

// fakeCatalog answers searches, optionally blocking until released
type fakeCatalog struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	block   map[string]chan struct{}
	err     error
}

func (f *fakeCatalog) Search(ctx context.Context, term string, limit int) (*port.SearchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, term)
	release := f.block[term]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- term
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &port.SearchResponse{
		Tracks:  []domain.Track{{Name: term, Artist: "Artist", PreviewURL: "https://audio.test/" + term + ".m4a"}},
		Skipped: 1,
	}, nil
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memoryCache implements port.SearchCache for testing
type memoryCache struct {
	mu       sync.Mutex
	searches map[string][]domain.Track
}

func newMemoryCache() *memoryCache {
	return &memoryCache{searches: make(map[string][]domain.Track)}
}

func (c *memoryCache) SaveSearch(term string, tracks []domain.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches[term] = tracks
	return nil
}

func (c *memoryCache) GetSearch(term string, maxAge time.Duration) ([]domain.Track, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracks, ok := c.searches[term]
	return tracks, ok, nil
}

func (c *memoryCache) PurgeSearches(olderThan time.Duration) (int, error) { return 0, nil }
func (c *memoryCache) Stats() (*port.SearchCacheStats, error)             { return &port.SearchCacheStats{}, nil }
func (c *memoryCache) Ping() error                                        { return nil }

func TestService_Search(t *testing.T) {
	fc := &fakeCatalog{}
	svc := New(nil, fc, nil, zap.NewNop())

	result, err := svc.Search(context.Background(), "  daft punk ")
	require.NoError(t, err)
	assert.Equal(t, "daft punk", result.Term)
	assert.Len(t, result.Tracks, 1)
	assert.Equal(t, 1, result.Skipped)
	assert.False(t, result.Cached)
}

func TestService_SearchEmptyTerm(t *testing.T) {
	fc := &fakeCatalog{}
	svc := New(nil, fc, nil, zap.NewNop())

	_, err := svc.Search(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, fc.callCount())
}

func TestService_NewSearchSupersedesOld(t *testing.T) {
	fc := &fakeCatalog{
		started: make(chan string, 2),
		block:   map[string]chan struct{}{"first": make(chan struct{})},
	}
	svc := New(nil, fc, nil, zap.NewNop())

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Search(context.Background(), "first")
		firstErr <- err
	}()
	require.Equal(t, "first", <-fc.started)

	result, err := svc.Search(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "second", result.Tracks[0].Name)
	<-fc.started

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, domain.ErrSearchSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded search did not return")
	}
}

func TestService_CancelAbortsInFlight(t *testing.T) {
	fc := &fakeCatalog{
		started: make(chan string, 1),
		block:   map[string]chan struct{}{"slow": make(chan struct{})},
	}
	svc := New(nil, fc, nil, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Search(context.Background(), "slow")
		errCh <- err
	}()
	<-fc.started
	svc.Cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, domain.ErrSearchSuperseded)
	case <-time.After(time.Second):
		t.Fatal("cancelled search did not return")
	}
}

func TestService_UsesCache(t *testing.T) {
	fc := &fakeCatalog{}
	cache := newMemoryCache()
	svc := New(&Config{Limit: 10, CacheTTL: time.Hour}, fc, cache, zap.NewNop())

	_, err := svc.Search(context.Background(), "justice")
	require.NoError(t, err)

	result, err := svc.Search(context.Background(), "justice")
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Len(t, result.Tracks, 1)
	assert.Equal(t, 1, fc.callCount())
}

func TestService_CatalogErrorIsReturned(t *testing.T) {
	fc := &fakeCatalog{err: domain.NewTransportError(errors.New("Bad Gateway"), 502)}
	cache := newMemoryCache()
	svc := New(&Config{CacheTTL: time.Hour}, fc, cache, zap.NewNop())

	_, err := svc.Search(context.Background(), "justice")
	assert.True(t, domain.IsTransportFailure(err))
	assert.Empty(t, cache.searches, "failures are not cached")
}
