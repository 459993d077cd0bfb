package composite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while a host's circuit breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	// Client used for requests. Defaults to a client without timeout.
	Client *http.Client
	// Timeout bounds a single fetch. Zero means no timeout.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens a
	// host's breaker.
	FailureThreshold uint32
	// OpenTimeout is how long a breaker stays open before probing again.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// HTTPFetcher fetches tiles over HTTP with one circuit breaker per host, so a
// dead tile server fails fast instead of stalling every render.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	threshold uint32
	openFor   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPFetcher{
		client:    cfg.Client,
		timeout:   cfg.Timeout,
		threshold: cfg.FailureThreshold,
		openFor:   cfg.OpenTimeout,
		logger:    cfg.Logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// fetchResult carries a body through the breaker. A nil body with a nil error
// is an expected absence that must not count as a failure.
type fetchResult struct {
	body []byte
	err  error
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse tile url: %w", err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	out, err := f.breaker(u.Host).Execute(func() (interface{}, error) {
		return f.get(ctx, rawURL)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, u.Host)
	}
	if err != nil {
		return nil, err
	}

	res := out.(fetchResult)
	if res.err != nil {
		return nil, res.err
	}
	return Decode(res.body)
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{err: err}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; the host is not to blame.
			return fetchResult{err: ctx.Err()}, nil
		}
		return fetchResult{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fetchResult{err: ErrTileNotFound}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fetchResult{}, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return fetchResult{body: body}, nil
}

func (f *HTTPFetcher) breaker(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	threshold := f.threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     f.openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("tile host breaker state changed", "host", name, "from", from.String(), "to", to.String())
		},
	})
	f.breakers[host] = cb
	return cb
}

// BreakerState returns the breaker state of a host, closed when the host was
// never contacted.
func (f *HTTPFetcher) BreakerState(host string) gobreaker.State {
	f.mu.Lock()
	cb, ok := f.breakers[host]
	f.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}
