// Package fetch downloads published extension tarballs with retry, per-registry
// circuit breaking and tarball URL resolution.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"

	"github.com/git-pkgs/extstatus/client"
	"github.com/git-pkgs/extstatus/internal/logging"
)

var (
	ErrNotFound     = errors.New("tarball not found")
	ErrRateLimited  = errors.New("rate limited by registry")
	ErrUpstreamDown = errors.New("registry unavailable")
	ErrTooLarge     = errors.New("tarball exceeds size limit")
)

// DefaultMaxSize caps a single tarball download. Extension packages carry
// bundled JavaScript and rarely exceed a few megabytes.
const DefaultMaxSize = 64 << 20

// Artifact is a downloaded tarball stream.
type Artifact struct {
	URL         string
	Body        io.ReadCloser
	Size        int64 // -1 if unknown
	ContentType string
}

// TarballFetcher is implemented by Fetcher and CircuitBreakerFetcher.
type TarballFetcher interface {
	Fetch(ctx context.Context, url string) (*Artifact, error)
}

// Fetcher downloads tarballs from package registries.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxSize    int64
	authFn     func(url string) (headerName, headerValue string)
	logger     *slog.Logger

	resolver *dnscache.Resolver
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets how many times a retryable failure is attempted again.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithMaxSize caps the number of bytes read from one tarball. Zero or
// negative disables the cap.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		f.maxSize = n
	}
}

// WithAuthFunc sets a function returning an auth header for private registries.
// Return empty strings to skip authentication for that URL.
func WithAuthFunc(fn func(url string) (headerName, headerValue string)) Option {
	return func(f *Fetcher) {
		f.authFn = fn
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a new Fetcher with the given options. Call Close to stop
// the background DNS cache refresh.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		resolver:   &dnscache.Resolver{},
		stop:       make(chan struct{}),
		userAgent:  "extstatus",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		maxSize:    DefaultMaxSize,
		logger:     logging.L("fetch"),
	}
	f.client = &http.Client{
		Timeout:   2 * time.Minute,
		Transport: client.NewTransport(f.resolver),
	}
	for _, opt := range opts {
		opt(f)
	}

	go f.refreshDNS(5 * time.Minute)
	return f
}

func (f *Fetcher) refreshDNS(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.resolver.Refresh(true)
		case <-f.stop:
			return
		}
	}
}

// Close stops the DNS refresh goroutine.
func (f *Fetcher) Close() {
	f.stopOnce.Do(func() { close(f.stop) })
}

// Fetch downloads the tarball at url. Rate limits, 5xx responses and
// transport failures are retried with exponential backoff; anything else is
// returned at once. The caller must close the returned Artifact.Body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Artifact, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.baseDelay
	b.MaxInterval = f.maxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.NextBackOff()
			f.logger.Debug("retrying tarball", "url", url, "attempt", attempt, "delay", delay, logging.KeyError, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		artifact, err := f.get(ctx, url)
		if err == nil {
			return artifact, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrUpstreamDown) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) get(ctx context.Context, url string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/octet-stream, */*")
	if f.authFn != nil {
		if name, value := f.authFn(url); name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamDown, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError(resp)
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s: %d bytes: %w", url, resp.ContentLength, ErrTooLarge)
	}

	body := resp.Body
	if f.maxSize > 0 {
		body = &limitedBody{ReadCloser: resp.Body, remaining: f.maxSize}
	}
	return &Artifact{
		URL:         url,
		Body:        body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUpstreamDown, resp.StatusCode)
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &client.HTTPError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String(), Body: string(snippet)}
}

// limitedBody fails reads once more than remaining bytes have been served,
// so a server that lies about or omits Content-Length cannot stream forever.
type limitedBody struct {
	io.ReadCloser
	remaining int64
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.ReadCloser.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
