package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/domain/event"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"serve", "search", "fetch"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestFetchRequiresTerm(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"fetch"})
	cmd.SetOut(new(discard))
	cmd.SetErr(new(discard))

	assert.Error(t, cmd.Execute())
}

func TestTrackAt(t *testing.T) {
	tracks := []domain.Track{
		{Name: "a", PreviewURL: "https://example.com/a.m4a", Index: 0},
		{Name: "c", PreviewURL: "https://example.com/c.m4a", Index: 2},
	}

	got, ok := trackAt(tracks, 2)
	require.True(t, ok)
	assert.Equal(t, "c", got.Name)

	_, ok = trackAt(tracks, 1)
	assert.False(t, ok)
}

func TestProgressLine(t *testing.T) {
	line := progressLine(event.NewTransferProgressed("id", 0.5, 500, 1000))
	assert.Equal(t, " 50.0%  500 B / 1.0 kB", line)

	line = progressLine(event.NewTransferProgressed("id", -1, 2000, -1))
	assert.Equal(t, "2.0 kB received", line)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
