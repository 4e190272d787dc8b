package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/provider-risk/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	// Rate and Burst seed each host's adaptive limiter.
	Rate  rate.Limit
	Burst int
}

// AdaptiveLimiter wraps a rate.Limiter that speeds up on success and backs
// off on 429. The rate stays within [initial/4, initial*2].
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initialRate.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.setRate(func(r rate.Limit) rate.Limit { return min(r*1.2, a.maxRate) })
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	r := a.setRate(func(r rate.Limit) rate.Limit { return max(r*0.5, a.minRate) })
	zap.L().Warn("fetcher: rate limited, reducing rate", zap.Float64("new_rate", float64(r)))
}

func (a *AdaptiveLimiter) setRate(next func(rate.Limit) rate.Limit) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = next(a.currentRate)
	a.limiter.SetLimit(a.currentRate)
	return a.currentRate
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher over net/http with per-host adaptive rate
// limiting and transient-error retries.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "provider-risk/1.0"
	}
	if opts.Rate <= 0 {
		opts.Rate = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// LimiterFor returns the adaptive limiter for host, creating it on first use.
func (f *HTTPFetcher) LimiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.Rate, f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}

// do sends req with retries. Any status other than 429 and 5xx is returned to
// the caller unread.
func (f *HTTPFetcher) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.LimiterFor(req.URL.Host)
	cfg := f.opts.Retry
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("fetcher: retrying request",
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: send request")
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return nil, resilience.StatusError("fetcher: "+req.URL.Host, resp.StatusCode)
		}
		lim.OnSuccess()
		return resp, nil
	})
}

func (f *HTTPFetcher) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	return req, nil
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, _, _, err := f.DownloadIfChanged(ctx, rawURL, "")
	return body, err
}

// DownloadIfChanged fetches the URL only if its ETag differs from etag.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	req, err := f.newRequest(ctx, rawURL)
	if err != nil {
		return nil, "", false, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, "", false, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		_ = resp.Body.Close()
		return nil, etag, false, nil
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, "", false, resilience.StatusError("fetcher: download "+rawURL, resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("ETag"), true, nil
}

// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
