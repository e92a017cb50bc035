package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
)

var ErrRobotsDisallowed = errors.New("blocked by robots.txt")

// PoliteClient enforces per-host rate limits, robots.txt rules, and polite retries.
type PoliteClient struct {
	client      *http.Client
	opts        Options
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*robotstxt.RobotsData
	mu          sync.Mutex
}

func NewPoliteClient(opts Options) *PoliteClient {
	opts = opts.withDefaults()
	return &PoliteClient{
		client:      &http.Client{Timeout: opts.Timeout},
		opts:        opts,
		limiters:    map[string]*rate.Limiter{},
		robotsCache: map[string]*robotstxt.RobotsData{},
	}
}

func (p *PoliteClient) limiterFor(host string) *rate.Limiter {
	host = normalizeHost(host)
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(p.opts.hostLimit(), p.opts.HostBurst)
	p.limiters[host] = l
	return l
}

// SetHostLimit replaces the token bucket used for host.
func (p *PoliteClient) SetHostLimit(host string, per time.Duration, burst int) {
	if host == "" || per <= 0 || burst <= 0 {
		return
	}
	p.mu.Lock()
	p.limiters[normalizeHost(host)] = rate.NewLimiter(rate.Every(per), burst)
	p.mu.Unlock()
}

// NewRequest builds an HTTP GET request with context and a safe URL defaulting to https.
func NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
}

func (p *PoliteClient) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Hostname()
	p.mu.Lock()
	if data, ok := p.robotsCache[host]; ok {
		p.mu.Unlock()
		return data, nil
	}
	p.mu.Unlock()

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	if err := p.limiterFor(host).Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.robotsCache[host] = data
	p.mu.Unlock()
	return data, nil
}

// Do executes the request respecting robots.txt and rate limits. Responses
// with 429 or 5xx are retried while attempts remain; the final response is
// returned whatever its status.
func (p *PoliteClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}

	u := req.URL
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	if p.opts.RespectRobots && !p.allowed(ctx, u, req.Method) {
		return nil, &FetchError{URL: u.String(), Err: ErrRobotsDisallowed}
	}

	limiter := p.limiterFor(u.Hostname())

	var lastErr error
	for attempt := 0; attempt < p.opts.Attempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: u.String(), Err: err}
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = &FetchError{URL: u.String(), Err: err}
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if shouldBackoff(resp.StatusCode) && attempt < p.opts.Attempts-1 {
			resp.Body.Close()
			lastErr = StatusError(u.String(), resp.StatusCode)
			p.opts.Logger.Debug().Str("url", u.String()).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retrying request")
			if err := sleepWithContext(ctx, backoffDelay(attempt)); err != nil {
				return nil, &FetchError{URL: u.String(), Err: err}
			}
			continue
		}

		return resp, nil
	}

	if lastErr == nil {
		lastErr = &FetchError{URL: u.String(), Err: errors.New("polite client: failed without error")}
	}
	return nil, lastErr
}

// Fetch performs a GET and returns the body of a 2xx response, then applies
// the polite delay.
func (p *PoliteClient) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := NewRequest(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	body, err := p.Get(req)
	if err != nil {
		return nil, err
	}
	if err := p.opts.Throttle.Wait(ctx); err != nil {
		return nil, err
	}
	return body, nil
}

// Get executes req and reads the body, mapping non-2xx statuses to FetchError.
func (p *PoliteClient) Get(req *http.Request) ([]byte, error) {
	ctx := req.Context()
	resp, err := p.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, StatusError(req.URL.String(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: req.URL.String(), Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	observability.IncPagesFetched()
	p.opts.Logger.Debug().Str("url", req.URL.String()).Int("bytes", len(body)).Msg("fetched")
	return body, nil
}

func (p *PoliteClient) allowed(ctx context.Context, u *url.URL, method string) bool {
	data, err := p.robotsFor(ctx, u)
	if err != nil {
		return true // fail open to avoid blocking everything
	}
	group := data.FindGroup(p.opts.UserAgent)
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if !group.Test(path) {
		return false
	}
	// Only reads are ever issued.
	return strings.EqualFold(method, http.MethodGet) || strings.EqualFold(method, http.MethodHead)
}
