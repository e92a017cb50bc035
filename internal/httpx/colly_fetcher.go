package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
)

// CollyFetcher wraps Colly for polite HTML fetching.
type CollyFetcher struct {
	opts  Options
	mu    sync.Mutex
	hosts map[string]*hostPolicy
}

type hostPolicy struct {
	limiter     *rate.Limiter
	nextAllowed time.Time
	mu          sync.Mutex
}

func NewCollyFetcher(opts Options) *CollyFetcher {
	return &CollyFetcher{
		opts:  opts.withDefaults(),
		hosts: make(map[string]*hostPolicy),
	}
}

// SetHostLimit replaces the token bucket used for host.
func (f *CollyFetcher) SetHostLimit(host string, per time.Duration, burst int) {
	if host == "" || per <= 0 || burst <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	policy := f.getOrCreatePolicyLocked(normalizeHost(host))
	policy.mu.Lock()
	policy.limiter = rate.NewLimiter(rate.Every(per), burst)
	policy.mu.Unlock()
}

// Fetch returns the body of a 2xx response and then applies the polite delay.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	body, err := f.fetchWithRetry(ctx, target)
	if err != nil {
		return nil, err
	}
	observability.IncPagesFetched()
	f.opts.Logger.Debug().Str("url", target).Int("bytes", len(body)).Msg("fetched page")

	if err := f.opts.Throttle.Wait(ctx); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *CollyFetcher) fetchWithRetry(ctx context.Context, target string) ([]byte, error) {
	host := hostKey(target)

	var lastErr error
	for attempt := 0; attempt < f.opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: target, Err: err}
		}
		if err := f.waitForHost(ctx, host); err != nil {
			return nil, &FetchError{URL: target, Err: err}
		}

		body, status, err := f.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !shouldBackoff(status) {
			break
		}
		f.opts.Logger.Debug().Str("url", target).Int("status", status).Int("attempt", attempt+1).Msg("retrying fetch")
		f.applyBackoff(host, attempt)
	}

	if lastErr == nil {
		lastErr = &FetchError{URL: target, Err: errors.New("colly fetch failed")}
	}
	return nil, lastErr
}

func (f *CollyFetcher) fetchOnce(ctx context.Context, target string) ([]byte, int, error) {
	c := f.newCollector()

	var (
		status int
		body   []byte
		reqErr error
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		if isSuccess(r.StatusCode) {
			body = append([]byte(nil), r.Body...)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	collyCtx := colly.NewContext()
	collyCtx.Put("ctx", ctx)

	if err := c.Request(http.MethodGet, target, nil, collyCtx, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, status, &FetchError{URL: target, Status: status, Err: err}
	}
	if reqErr != nil {
		return nil, status, &FetchError{URL: target, Status: status, Err: reqErr}
	}
	if !isSuccess(status) {
		return nil, status, StatusError(target, status)
	}
	return body, status, nil
}

func (f *CollyFetcher) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(f.opts.UserAgent))
	c.IgnoreRobotsTxt = !f.opts.RespectRobots
	c.ParseHTTPErrorResponse = true
	c.AllowURLRevisit = true
	c.SetRequestTimeout(f.opts.Timeout)

	c.OnRequest(func(r *colly.Request) {
		ctx := context.Background()
		if v := r.Ctx.GetAny("ctx"); v != nil {
			if reqCtx, ok := v.(context.Context); ok {
				ctx = reqCtx
			}
		}
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	return c
}

func (f *CollyFetcher) waitForHost(ctx context.Context, host string) error {
	policy := f.hostPolicy(host)
	if err := policy.waitBackoff(ctx); err != nil {
		return err
	}
	return policy.limiter.Wait(ctx)
}

func (f *CollyFetcher) hostPolicy(host string) *hostPolicy {
	key := normalizeHost(host)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreatePolicyLocked(key)
}

func (f *CollyFetcher) getOrCreatePolicyLocked(host string) *hostPolicy {
	if host == "" {
		host = "default"
	}
	if policy, ok := f.hosts[host]; ok {
		return policy
	}
	policy := &hostPolicy{
		limiter: rate.NewLimiter(f.opts.hostLimit(), f.opts.HostBurst),
	}
	f.hosts[host] = policy
	return policy
}

func (f *CollyFetcher) applyBackoff(host string, attempt int) {
	policy := f.hostPolicy(host)
	next := time.Now().Add(backoffDelay(attempt))
	policy.mu.Lock()
	if next.After(policy.nextAllowed) {
		policy.nextAllowed = next
	}
	policy.mu.Unlock()
}

func (p *hostPolicy) waitBackoff(ctx context.Context) error {
	for {
		p.mu.Lock()
		next := p.nextAllowed
		p.mu.Unlock()
		now := time.Now()
		if !now.Before(next) {
			return nil
		}
		if err := sleepWithContext(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

func normalizeURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String(), nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "default"
	}
	return normalizeHost(u.Hostname())
}
