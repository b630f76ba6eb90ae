package itunes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/port"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public iTunes Search API
	DefaultBaseURL = "https://itunes.apple.com"

	maxLimit = 200
)

// Config contains iTunes client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Country   string // optional two-letter storefront code
}

// Client queries the iTunes Search API for song previews
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Ensure Client implements port.Catalog
var _ port.Catalog = (*Client)(nil)

// NewClient creates a new iTunes Search API client
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "HalfTunes/1.0"
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		logger: logger.Named("itunes"),
	}
}

// buildURL builds the search request URL
func (c *Client) buildURL(term string, limit int) string {
	params := url.Values{}
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("term", term)
	if limit > 0 {
		if limit > maxLimit {
			limit = maxLimit
		}
		params.Set("limit", strconv.Itoa(limit))
	}
	if c.config.Country != "" {
		params.Set("country", c.config.Country)
	}
	return fmt.Sprintf("%s/search?%s", c.config.BaseURL, params.Encode())
}

// Search returns the song previews matching term. Records that cannot
// be turned into tracks are counted in Skipped.
func (c *Client) Search(ctx context.Context, term string, limit int) (*port.SearchResponse, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", domain.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(term, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransportError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewTransportError(errors.New(http.StatusText(resp.StatusCode)), resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := &port.SearchResponse{Tracks: make([]domain.Track, 0, len(body.Results))}
	for _, raw := range body.Results {
		track, err := toTrack(raw, len(out.Tracks))
		if err != nil {
			out.Skipped++
			c.logger.Debug("skipping search result", zap.Error(err))
			continue
		}
		out.Tracks = append(out.Tracks, track)
	}

	c.logger.Debug("search finished",
		zap.String("term", term),
		zap.Int("tracks", len(out.Tracks)),
		zap.Int("skipped", out.Skipped))

	return out, nil
}
