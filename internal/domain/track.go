package domain

import (
	"fmt"
	"net/url"
	"path"
)

// Track is a downloadable song preview returned by a catalog search.
// The preview URL doubles as the track's identity.
type Track struct {
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	PreviewURL string `json:"preview_url"`
	Index      int    `json:"index"`
}

// ID returns the stable identity of the track
func (t Track) ID() string {
	return t.PreviewURL
}

// FileName returns the last path component of the preview URL
func (t Track) FileName() string {
	u, err := url.Parse(t.PreviewURL)
	if err != nil || u.Path == "" {
		return ""
	}
	return path.Base(u.Path)
}

// Validate checks that the track can be fetched
func (t Track) Validate() error {
	if t.PreviewURL == "" {
		return fmt.Errorf("%w: preview url is required", ErrInvalidInput)
	}
	u, err := url.Parse(t.PreviewURL)
	if err != nil {
		return fmt.Errorf("%w: preview url: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: preview url has no host", ErrInvalidInput)
	}
	return nil
}
