// Package outdated discovers which installed extensions have newer
// compatible versions and memoizes the answer per application directory.
package outdated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/logging"
	"github.com/git-pkgs/extstatus/internal/metrics"
)

// DefaultTimeout is the wall-clock budget for one discovery run.
const DefaultTimeout = 10 * time.Second

// Discoverer computes outdated entries for every installed extension of an
// application directory.
type Discoverer interface {
	Discover(ctx context.Context, appDir string) (map[string]core.OutdatedEntry, error)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context, appDir string) (map[string]core.OutdatedEntry, error)

func (f DiscovererFunc) Discover(ctx context.Context, appDir string) (map[string]core.OutdatedEntry, error) {
	return f(ctx, appDir)
}

// Future is one generation's pending or completed result.
type Future struct {
	gen    uint64
	done   chan struct{}
	result map[string]core.OutdatedEntry
	err    error
}

// Generation returns the cache generation this future belongs to.
func (f *Future) Generation() uint64 { return f.gen }

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx ends. The returned map is
// shared by every waiter of the generation and must not be modified.
func (f *Future) Wait(ctx context.Context) (map[string]core.OutdatedEntry, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err reports why a completed generation produced an empty result, such as
// core.ErrDiscoveryTimeout. It is nil while pending and after a clean run.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Cache holds at most one in-flight or completed discovery per generation.
// All callers of Get within a generation share the same computation.
type Cache struct {
	appDir  string
	disc    Discoverer
	timeout time.Duration
	log     *slog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	gen     uint64
	current *Future
}

// Option configures a Cache.
type Option func(*Cache)

// WithTimeout sets the discovery budget. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for discovery warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

// NewCache creates an empty cache for appDir. Nothing is computed until the
// first Get.
func NewCache(appDir string, d Discoverer, opts ...Option) *Cache {
	base, cancel := context.WithCancel(context.Background())
	c := &Cache{
		appDir:  appDir,
		disc:    d,
		timeout: DefaultTimeout,
		log:     logging.L("outdated"),
		base:    base,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current generation, starting a computation if the cache
// is empty.
func (c *Cache) Get() *Future {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return c.startLocked()
	}
	return c.current
}

// Refresh discards the memoized or pending result and starts a new
// generation. Callers already waiting on the previous generation still
// receive its result.
func (c *Cache) Refresh() *Future {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

// Invalidate drops the memoized result so that the next Get recomputes it.
// Repeated calls before that Get collapse into one recomputation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// Generation returns the number of computations started so far.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Close cancels any running discovery. Futures still complete.
func (c *Cache) Close() {
	c.cancel()
}

func (c *Cache) startLocked() *Future {
	c.gen++
	f := &Future{gen: c.gen, done: make(chan struct{})}
	c.current = f
	go c.run(f)
	return f
}

type discovery struct {
	result map[string]core.OutdatedEntry
	err    error
}

func (c *Cache) run(f *Future) {
	ctx := logging.NewContext(c.base, c.log.With(logging.KeyAppDir, c.appDir, "generation", f.gen))
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	ch := make(chan discovery, 1)
	go func() {
		result, err := c.disc.Discover(ctx, c.appDir)
		ch <- discovery{result, err}
	}()

	var d discovery
	select {
	case d = <-ch:
	case <-ctx.Done():
		d.err = ctx.Err()
	}

	metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())

	if d.err != nil {
		result := metrics.ResultFailure
		if errors.Is(d.err, context.DeadlineExceeded) {
			d.err = fmt.Errorf("%w after %s", core.ErrDiscoveryTimeout, c.timeout)
		}
		if errors.Is(d.err, core.ErrDiscoveryTimeout) {
			result = metrics.ResultTimeout
		}
		metrics.DiscoveryRuns.WithLabelValues(result).Inc()
		c.log.Warn("outdated discovery failed, reporting no updates",
			logging.KeyAppDir, c.appDir, "generation", f.gen, logging.KeyError, d.err)
		d.result = nil

		// A failed generation is not memoized; the next Get tries again.
		c.mu.Lock()
		if c.current == f {
			c.current = nil
		}
		c.mu.Unlock()
	}
	if d.err == nil {
		metrics.DiscoveryRuns.WithLabelValues(metrics.ResultSuccess).Inc()
	}
	if d.result == nil {
		d.result = map[string]core.OutdatedEntry{}
	}

	f.result, f.err = d.result, d.err
	close(f.done)
}
