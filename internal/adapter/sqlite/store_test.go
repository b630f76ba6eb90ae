package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/halftunes/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "db", "halftunes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTracks() []domain.Track {
	return []domain.Track{
		{Name: "Get Lucky", Artist: "Daft Punk", PreviewURL: "https://audio.test/1.m4a", Index: 0},
		{Name: "Instant Crush", Artist: "Daft Punk", PreviewURL: "https://audio.test/2.m4a", Index: 1},
	}
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Daft Punk", "daft punk"},
		{"  daft   PUNK ", "daft punk"},
		{"\t", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTerm(tt.in); got != tt.want {
			t.Errorf("NormalizeTerm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStore_SaveAndGetSearch(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Ping())

	require.NoError(t, store.SaveSearch("Daft Punk", sampleTracks()))

	got, ok, err := store.GetSearch("  daft punk", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleTracks(), got)

	_, ok, err = store.GetSearch("justice", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveReplacesPreviousResults(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveSearch("daft punk", sampleTracks()))
	require.NoError(t, store.SaveSearch("DAFT PUNK", sampleTracks()[:1]))

	got, ok, err := store.GetSearch("daft punk", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Searches)
	assert.Equal(t, int64(1), stats.Tracks)
}

func TestStore_EmptyResultsAreCached(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveSearch("nothing matches", nil))
	got, ok, err := store.GetSearch("nothing matches", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)

	assert.ErrorIs(t, store.SaveSearch("  ", nil), domain.ErrInvalidInput)
}

func TestStore_ExpiryAndPurge(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now.Add(-2 * time.Hour) }
	require.NoError(t, store.SaveSearch("old", sampleTracks()))
	store.now = func() time.Time { return now }
	require.NoError(t, store.SaveSearch("fresh", sampleTracks()))

	_, ok, err := store.GetSearch("old", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "expired search is a miss")

	_, ok, err = store.GetSearch("old", 0)
	require.NoError(t, err)
	assert.True(t, ok, "zero max age accepts any age")

	purged, err := store.PurgeSearches(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Searches)
	assert.Equal(t, int64(2), stats.Tracks)
}
