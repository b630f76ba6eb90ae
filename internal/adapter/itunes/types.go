package itunes

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/vertextoedge/halftunes/internal/domain"
)

// searchResponse is the envelope returned by the search endpoint.
// Results stay raw so one malformed record does not fail the whole page.
type searchResponse struct {
	ResultCount int               `json:"resultCount"`
	Results     []json.RawMessage `json:"results"`
}

// searchResult is the subset of a song record we use
type searchResult struct {
	WrapperType string `json:"wrapperType"`
	Kind        string `json:"kind"`
	TrackID     int64  `json:"trackId"`
	TrackName   string `json:"trackName"`
	ArtistName  string `json:"artistName"`
	PreviewURL  string `json:"previewUrl"`
}

// toTrack converts a raw record, rejecting anything without a usable
// name, artist and preview URL
func toTrack(raw json.RawMessage, index int) (domain.Track, error) {
	var r searchResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Track{}, fmt.Errorf("malformed record: %w", err)
	}
	if r.TrackName == "" || r.ArtistName == "" {
		return domain.Track{}, fmt.Errorf("record %d has no track or artist name", r.TrackID)
	}
	if _, err := url.Parse(r.PreviewURL); err != nil || r.PreviewURL == "" {
		return domain.Track{}, fmt.Errorf("record %d has no valid preview url", r.TrackID)
	}

	track := domain.Track{
		Name:       r.TrackName,
		Artist:     r.ArtistName,
		PreviewURL: r.PreviewURL,
		Index:      index,
	}
	if err := track.Validate(); err != nil {
		return domain.Track{}, err
	}
	return track, nil
}
