package httpx

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
)

const (
	DefaultUserAgent    = "JobMarketAnalyticsBot/1.0"
	DefaultTimeout      = 15 * time.Second
	defaultHostInterval = time.Second
	defaultHostBurst    = 2
)

var ErrUnauthorized = errors.New("unauthorized")

// Fetcher obtains the raw bytes of a document.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// HostLimiter is implemented by fetchers that keep a token bucket per host.
type HostLimiter interface {
	SetHostLimit(host string, per time.Duration, burst int)
}

// Options configures the network fetchers.
type Options struct {
	UserAgent string
	// Timeout bounds each request.
	Timeout time.Duration
	// Attempts includes the initial attempt. Only 429 and 5xx responses are retried.
	Attempts int
	// RespectRobots consults robots.txt before fetching.
	RespectRobots bool
	// HostInterval and HostBurst shape the per-host token bucket.
	HostInterval time.Duration
	HostBurst    int
	// Throttle runs after every successful fetch.
	Throttle *Throttle
	Logger   zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	if o.HostInterval <= 0 {
		o.HostInterval = defaultHostInterval
	}
	if o.HostBurst <= 0 {
		o.HostBurst = defaultHostBurst
	}
	return o
}

func (o Options) hostLimit() rate.Limit {
	return rate.Every(o.HostInterval)
}

type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	case e.Status == 0:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) ErrorKind() string {
	switch {
	case errors.Is(e.Err, context.Canceled):
		return observability.ErrorCanceled
	case errors.Is(e.Err, ErrUnauthorized):
		return observability.ErrorAuth
	case e.Status == http.StatusTooManyRequests:
		return observability.ErrorRateLimit
	default:
		return observability.ErrorNetwork
	}
}

// StatusError builds the FetchError for a non-2xx response.
func StatusError(target string, status int) *FetchError {
	fe := &FetchError{URL: target, Status: status}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		fe.Err = ErrUnauthorized
	}
	return fe
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func shouldBackoff(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(500*(1<<attempt)) * time.Millisecond
}

// Throttle sleeps for a random duration in [Min, Max].
type Throttle struct {
	Min time.Duration
	Max time.Duration
}

func NewThrottle(min, max time.Duration) *Throttle {
	return &Throttle{Min: min, Max: max}
}

func (t *Throttle) next() time.Duration {
	if t == nil || t.Max <= 0 && t.Min <= 0 {
		return 0
	}
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + rand.N(t.Max-t.Min)
}

func (t *Throttle) Wait(ctx context.Context) error {
	d := t.next()
	if d <= 0 {
		return nil
	}
	return sleepWithContext(ctx, d)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FileFetcher reads documents from the local filesystem. Targets may be plain
// paths or file:// URLs.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(target, "file://")
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	observability.IncPagesFetched()
	return body, nil
}

// IsRemote reports whether target should go through a network fetcher.
func IsRemote(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
