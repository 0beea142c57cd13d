package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/benedoc-inc/pdfmerge/types"
)

// Fetcher retrieves the body of an http(s) URL
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// FetchConfig holds the HTTP fetcher settings
type FetchConfig struct {
	// Timeout bounds a single request, including the body read.
	Timeout time.Duration
	// RequestsPerSecond is the sustained fetch rate. Zero disables limiting.
	RequestsPerSecond float64
	// BurstSize is the maximum burst of requests.
	BurstSize int
	// MaxBytes caps the body size. Zero means no cap.
	MaxBytes int64
	// UserAgent is sent with every request when set.
	UserAgent string
}

// DefaultFetchConfig returns conservative fetcher settings
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 10,
		BurstSize:         20,
		MaxBytes:          100 << 20,
		UserAgent:         "pdfmerge",
	}
}

// HTTPFetcher fetches documents over HTTP with a token bucket limiter
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxBytes  int64
	userAgent string
	logger    zerolog.Logger
}

// NewHTTPFetcher creates a fetcher from cfg. A nil client uses a new
// http.Client with cfg.Timeout.
func NewHTTPFetcher(cfg FetchConfig, client *http.Client, logger zerolog.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	f := &HTTPFetcher{
		client:    client,
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.BurstSize
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return f
}

// Fetch issues a GET for u. Transport errors and non-2xx statuses are
// NetworkFetchFailure errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, types.WrapErrorf(types.ErrCodeNetworkFetch, err, "rate limit wait for %s", u.Redacted())
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, types.WrapErrorf(types.ErrCodeNetworkFetch, err, "building request for %s", u.Redacted())
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, types.WrapErrorf(types.ErrCodeNetworkFetch, err, "fetching %s", u.Redacted())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.NewPDFErrorf(types.ErrCodeNetworkFetch, "fetching %s: unexpected status %s", u.Redacted(), resp.Status).
			WithContext("status", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		return nil, types.WrapErrorf(types.ErrCodeNetworkFetch, err, "reading %s", u.Redacted())
	}

	f.logger.Debug().
		Str("url", u.Redacted()).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("fetched source")
	return data, nil
}

// readLimited reads all of r, failing once more than max bytes arrive.
// max <= 0 reads without a cap.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("body exceeds %d bytes", max)
	}
	return data, nil
}
