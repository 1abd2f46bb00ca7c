package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // requests per second, <= 0 means unlimited
	UserAgent    string
}

// DefaultHTTPConfig returns the settings used when none are configured.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:      30 * time.Second,
		Retries:      3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		UserAgent:    "pluginhost/1.0",
	}
}

// HTTPFetcher downloads module sources over HTTP(S).
type HTTPFetcher struct {
	resty   *resty.Client
	breaker *resilience.Breaker

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewHTTP creates an HTTP fetcher with retries, rate limiting and a circuit breaker.
func NewHTTP(cfg HTTPConfig) *HTTPFetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient())
	client.SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	breaker := resilience.New("module-fetch", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		IsSuccessful: func(err error) bool {
			// a missing module is the host answering correctly
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrBinaryContent)
		},
	})

	f := &HTTPFetcher{
		resty:   client,
		breaker: breaker,
	}
	f.SetRateLimit(cfg.RateLimit)
	return f
}

// SetRateLimit configures rate limiting (requests per second)
func (f *HTTPFetcher) SetRateLimit(rps float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rps <= 0 {
		f.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		f.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// Breaker exposes the circuit breaker guarding this fetcher.
func (f *HTTPFetcher) Breaker() *resilience.Breaker {
	return f.breaker
}

// Fetch downloads url and returns its body as text.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.RLock()
	limiter := f.limiter
	f.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	var body string
	err := f.breaker.Do(func() error {
		resp, err := f.resty.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("get %s: %w", url, err)
		}

		switch code := resp.StatusCode(); {
		case code == http.StatusNotFound || code == http.StatusGone:
			return fmt.Errorf("%w: %s", ErrNotFound, url)
		case code < 200 || code >= 300:
			return fmt.Errorf("get %s: unexpected status %d", url, code)
		}

		raw := resp.Body()
		if !isText(raw) {
			return fmt.Errorf("%w: %s", ErrBinaryContent, url)
		}
		body = string(raw)
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}
