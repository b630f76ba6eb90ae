package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vertextoedge/halftunes/internal/domain"
	"github.com/vertextoedge/halftunes/internal/port"
	"github.com/vertextoedge/halftunes/internal/util/ratelimiter"
	"go.uber.org/zap"
)

// Config contains HTTP transport configuration
type Config struct {
	UserAgent             string
	ProgressInterval      time.Duration
	ResponseHeaderTimeout time.Duration
	BufferSize            int
}

// DefaultConfig returns default transport configuration
func DefaultConfig() *Config {
	return &Config{
		UserAgent:             "HalfTunes/1.0",
		ProgressInterval:      250 * time.Millisecond,
		ResponseHeaderTimeout: 30 * time.Second,
		BufferSize:            32 * 1024,
	}
}

var errStopped = errors.New("fetch stopped")

// Transport implements port.Transport over HTTP with Range-based resume
type Transport struct {
	config  *Config
	client  *http.Client
	storage port.Storage
	logger  *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Ensure Transport implements port.Transport
var _ port.Transport = (*Transport)(nil)

// New creates a new HTTP transport writing partial data through storage
func New(cfg *Config, storage port.Storage, logger *zap.Logger) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "HalfTunes/1.0"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}
	if cfg.ResponseHeaderTimeout == 0 {
		cfg.ResponseHeaderTimeout = 30 * time.Second
	}

	return &Transport{
		config: cfg,
		client: &http.Client{
			Timeout: 0, // No timeout for downloads
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          50,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
				// Range offsets refer to the identity encoding
				DisableCompression: true,
			},
		},
		storage: storage,
		logger:  logger.Named("http-transport"),
		closed:  make(chan struct{}),
	}
}

// Close stops delivering completion events and waits for in-flight
// fetches to wind down. Callers cancel their handles or contexts first.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.closed) })
	t.wg.Wait()
}

// Fetch starts a fetch on its own goroutine
func (t *Transport) Fetch(ctx context.Context, req port.FetchRequest, events chan<- port.TransportEvent) (port.Handle, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: cannot fetch %q", domain.ErrInvalidInput, req.URL)
	}
	select {
	case <-t.closed:
		return nil, domain.NewTransportError(errors.New("transport closed"), 0)
	default:
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &handle{
		transport: t,
		req:       req,
		events:    events,
		cancel:    cancel,
		limiter:   ratelimiter.New(t.config.ProgressInterval),
		tempPath:  t.storage.TempPath(req.TransferID, req.Attempt),
	}

	if req.ResumeData != nil {
		h.adoptResumeData(req.ResumeData)
	}

	t.wg.Add(1)
	go h.run(hctx)

	return h, nil
}

// Discard deletes the partial file a resume token refers to
func (t *Transport) Discard(resumeData []byte) error {
	if resumeData == nil {
		return nil
	}
	token, err := decodeResumeData(resumeData)
	if err != nil {
		return err
	}
	if !t.ownsPath(token.TempPath) {
		return fmt.Errorf("%w: resume data points outside storage", domain.ErrInvalidInput)
	}
	return t.storage.DeleteTempFile(token.TempPath)
}

func (t *Transport) ownsPath(path string) bool {
	rel, err := filepath.Rel(t.storage.RootDir(), path)
	return err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// handle tracks one fetch attempt. mu guards every write to the temp
// file so that Cancel observes a consistent byte count.
type handle struct {
	transport *Transport
	req       port.FetchRequest
	events    chan<- port.TransportEvent
	cancel    context.CancelFunc
	limiter   *ratelimiter.Limiter
	startedAt time.Time

	// restarted is set by fetch when resume data could not be used.
	// Only the run goroutine touches it.
	restarted bool

	mu           sync.Mutex
	stopped      bool
	finished     bool
	discard      bool
	tempPath     string
	written      int64
	total        int64
	acceptRanges bool
	etag         string
	lastModified string
}

// adoptResumeData switches the handle to the partial file of a previous
// attempt. Unusable tokens leave the handle starting from zero.
func (h *handle) adoptResumeData(data []byte) {
	logger := h.transport.logger.With(zap.String("id", h.req.TransferID))

	token, err := decodeResumeData(data)
	if err != nil {
		logger.Warn("ignoring resume data", zap.Error(err))
		return
	}
	if token.URL != h.req.URL || !h.transport.ownsPath(token.TempPath) {
		logger.Warn("resume data does not match request, starting fresh")
		return
	}

	size, _, err := h.transport.storage.GetTempFileInfo(token.TempPath)
	if err != nil || size == 0 {
		logger.Info("partial file missing, starting fresh", zap.String("temp_path", token.TempPath))
		return
	}
	if size != token.Offset {
		logger.Info("partial file size differs from resume offset, resuming from file size",
			zap.Int64("offset", token.Offset),
			zap.Int64("actual", size))
	}

	h.tempPath = token.TempPath
	h.written = size
	h.total = token.Total
	h.acceptRanges = true
	h.etag = token.ETag
	h.lastModified = token.LastModified
}

// Cancel stops the fetch. See port.Handle.
func (h *handle) Cancel(produceResumeData bool) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.finished {
		return nil
	}
	h.stopped = true
	h.cancel()

	if produceResumeData && h.acceptRanges && h.written > 0 {
		data, err := encodeResumeData(&resumeToken{
			URL:          h.req.URL,
			TempPath:     h.tempPath,
			Offset:       h.written,
			Total:        h.total,
			ETag:         h.etag,
			LastModified: h.lastModified,
		})
		if err == nil {
			return data
		}
		h.transport.logger.Warn("failed to encode resume data", zap.Error(err))
	}

	h.discard = true
	return nil
}

func (h *handle) run(ctx context.Context) {
	defer h.transport.wg.Done()
	defer h.cancel()

	h.startedAt = time.Now()
	resumed, err := h.fetch(ctx)

	h.mu.Lock()
	if h.stopped {
		discard, tempPath := h.discard, h.tempPath
		h.mu.Unlock()
		if discard {
			if rmErr := h.transport.storage.DeleteTempFile(tempPath); rmErr != nil {
				h.transport.logger.Warn("failed to remove discarded temp file", zap.Error(rmErr))
			}
		}
		return
	}
	h.finished = true
	tempPath := h.tempPath
	h.mu.Unlock()

	ev := port.TransportEvent{
		TransferID: h.req.TransferID,
		Attempt:    h.req.Attempt,
		Kind:       port.TransportComplete,
		Resumed:    resumed,
		Restarted:  h.restarted,
	}
	if err != nil {
		ev.Err = err
		_ = h.transport.storage.DeleteTempFile(tempPath)
		h.transport.logger.Debug("fetch failed",
			zap.String("id", h.req.TransferID),
			zap.Error(err))
	} else {
		ev.Location = tempPath
		h.transport.logger.Debug("fetch finished",
			zap.String("id", h.req.TransferID),
			zap.Bool("resumed", resumed),
			zap.Duration("duration", time.Since(h.startedAt)))
	}

	select {
	case h.events <- ev:
	case <-h.transport.closed:
	case <-ctx.Done():
		if err == nil {
			h.transport.logger.Warn("completion dropped, context done", zap.String("id", h.req.TransferID))
		}
	}
}

// fetch streams the body into the temp file. It reports whether bytes
// from a previous attempt were kept.
func (h *handle) fetch(ctx context.Context) (bool, error) {
	h.mu.Lock()
	offset, total := h.written, h.total
	validator := (&resumeToken{ETag: h.etag, LastModified: h.lastModified}).validator()
	h.mu.Unlock()

	// Everything arrived before the pause.
	if offset > 0 && total > 0 && offset >= total {
		h.reportProgress(offset, total, true)
		return true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.req.URL, nil)
	if err != nil {
		return false, domain.NewTransportError(err, 0)
	}
	req.Header.Set("User-Agent", h.transport.config.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		if validator != "" {
			req.Header.Set("If-Range", validator)
		}
	}

	resp, err := h.transport.client.Do(req)
	if err != nil {
		return false, domain.NewTransportError(err, 0)
	}
	defer resp.Body.Close()

	resume := false
	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		start, ok := parseRangeStart(resp.Header.Get("Content-Range"))
		if !ok || start != offset {
			return false, domain.NewTransportError(fmt.Errorf("unexpected content range %q", resp.Header.Get("Content-Range")), resp.StatusCode)
		}
		resume = true
		if size := parseContentRange(resp.Header.Get("Content-Range")); size > 0 {
			total = size
		} else if resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			h.transport.logger.Info("server ignored range request, restarting from zero",
				zap.String("id", h.req.TransferID),
				zap.Int64("offset", offset))
		}
		offset = 0
		total = 0
		if resp.ContentLength >= 0 {
			total = resp.ContentLength
		}
	default:
		return false, domain.NewTransportError(errors.New(http.StatusText(resp.StatusCode)), resp.StatusCode)
	}

	h.restarted = h.req.ResumeData != nil && !resume

	f, err := h.open(resume, offset, total, resp)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if resume {
		h.reportProgress(offset, total, true)
	}

	buf := make([]byte, h.transport.config.BufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			received, err := h.write(f, buf[:n])
			if err != nil {
				return resume, err
			}
			h.reportProgress(received, total, false)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return resume, domain.NewTransportError(readErr, 0)
		}
	}

	h.mu.Lock()
	received := h.written
	h.mu.Unlock()
	if total > 0 && received != total {
		return resume, domain.NewTransportError(fmt.Errorf("received %d of %d bytes: %w", received, total, io.ErrUnexpectedEOF), 0)
	}

	if err := f.Close(); err != nil {
		return resume, domain.NewStorageError(err, h.tempPath)
	}

	h.reportProgress(received, total, true)
	return resume, nil
}

// open prepares the temp file and records the response's resumability
func (h *handle) open(resume bool, offset, total int64, resp *http.Response) (*os.File, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, errStopped
	}

	f, existing, err := h.transport.storage.OpenTemp(h.tempPath, resume)
	if err != nil {
		return nil, domain.NewStorageError(err, h.tempPath)
	}
	if resume && existing != offset {
		f.Close()
		return nil, domain.NewStorageError(fmt.Errorf("partial file holds %d bytes, expected %d", existing, offset), h.tempPath)
	}

	h.written = offset
	h.total = total
	h.acceptRanges = resp.StatusCode == http.StatusPartialContent || resp.Header.Get("Accept-Ranges") == "bytes"
	h.etag = resp.Header.Get("ETag")
	h.lastModified = resp.Header.Get("Last-Modified")
	return f, nil
}

// write appends one chunk unless the handle has been cancelled
func (h *handle) write(f *os.File, p []byte) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return h.written, errStopped
	}
	n, err := f.Write(p)
	h.written += int64(n)
	if err != nil {
		return h.written, domain.NewStorageError(err, h.tempPath)
	}
	return h.written, nil
}

// reportProgress sends a throttled, non-blocking progress event
func (h *handle) reportProgress(received, expected int64, force bool) {
	if force {
		h.limiter.Mark()
	} else if allowed, _ := h.limiter.Allow(); !allowed {
		return
	}

	select {
	case h.events <- port.TransportEvent{
		TransferID:    h.req.TransferID,
		Attempt:       h.req.Attempt,
		Kind:          port.TransportProgress,
		BytesReceived: received,
		BytesExpected: expected,
		Restarted:     h.restarted,
	}:
	default:
		// Don't block if the event channel is full
	}
}
