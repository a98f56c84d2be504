package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/git-pkgs/extstatus/internal/logging"
	"github.com/git-pkgs/extstatus/internal/metrics"
)

// DefaultTripThreshold is the number of consecutive failures that opens a breaker.
const DefaultTripThreshold = 5

// CircuitBreakerFetcher wraps a TarballFetcher with one circuit breaker per
// registry host, so an unreachable registry stops costing a full retry cycle
// per package.
type CircuitBreakerFetcher struct {
	fetcher   TarballFetcher
	threshold int64
	cooldown  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

// BreakerOption configures a CircuitBreakerFetcher.
type BreakerOption func(*CircuitBreakerFetcher)

// WithTripThreshold sets how many consecutive registry failures open a breaker.
func WithTripThreshold(n int64) BreakerOption {
	return func(c *CircuitBreakerFetcher) {
		c.threshold = n
	}
}

// WithCooldown sets the first wait before an open breaker lets a probe through.
func WithCooldown(d time.Duration) BreakerOption {
	return func(c *CircuitBreakerFetcher) {
		c.cooldown = d
	}
}

// NewCircuitBreakerFetcher wraps f.
func NewCircuitBreakerFetcher(f TarballFetcher, opts ...BreakerOption) *CircuitBreakerFetcher {
	c := &CircuitBreakerFetcher{
		fetcher:   f,
		threshold: DefaultTripThreshold,
		cooldown:  30 * time.Second,
		logger:    logging.L("fetch"),
		breakers:  make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CircuitBreakerFetcher) breaker(host string) *circuit.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}

	cooldown := backoff.NewExponentialBackOff()
	cooldown.InitialInterval = c.cooldown
	cooldown.MaxInterval = 10 * c.cooldown
	cooldown.MaxElapsedTime = 0
	cooldown.Reset()

	b := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    cooldown,
		ShouldTrip: circuit.ConsecutiveTripFunc(c.threshold),
	})
	// The event channel is never closed, so this goroutine lives as long as
	// the process. There is one per registry host.
	events := b.Subscribe()
	go func() {
		for e := range events {
			switch e {
			case circuit.BreakerTripped:
				metrics.BreakerTrips.WithLabelValues(host).Inc()
				c.logger.Warn("registry circuit opened", "host", host)
			case circuit.BreakerReset:
				c.logger.Info("registry circuit closed", "host", host)
			}
		}
	}()
	c.breakers[host] = b
	return b
}

// Fetch downloads through the breaker for the URL's registry host. Only
// registry-health failures count towards tripping: a missing or oversized
// tarball leaves the breaker untouched.
func (c *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Artifact, error) {
	host := registryHost(fetchURL)
	b := c.breaker(host)

	var (
		artifact *Artifact
		passErr  error
	)
	err := b.Call(func() error {
		a, err := c.fetcher.Fetch(ctx, fetchURL)
		if err != nil && !unhealthy(err) {
			passErr = err
			return nil
		}
		artifact = a
		return err
	}, 0)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return nil, fmt.Errorf("circuit open for %s: %w", host, ErrUpstreamDown)
	}
	if err != nil {
		return nil, err
	}
	if passErr != nil {
		return nil, passErr
	}
	return artifact, nil
}

func unhealthy(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrUpstreamDown) || errors.Is(err, ErrRateLimited)
}

// registryHost returns the breaker key for a URL.
func registryHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// BreakerState returns "open" or "closed" per registry host. Every host listed
// also holds one event goroutine for the life of the process.
func (c *CircuitBreakerFetcher) BreakerState() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make(map[string]string, len(c.breakers))
	for host, b := range c.breakers {
		state := "closed"
		if b.Tripped() {
			state = "open"
		}
		states[host] = state
	}
	return states
}
