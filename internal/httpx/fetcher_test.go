package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
)

func testOptions() Options {
	return Options{
		UserAgent:    "jobmarket-test",
		Timeout:      2 * time.Second,
		HostInterval: time.Millisecond,
		HostBurst:    10,
	}
}

func TestCollyFetcher_Success(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><div class="job">x</div></body></html>`))
	}))
	defer srv.Close()

	f := NewCollyFetcher(testOptions())
	body, err := f.Fetch(context.Background(), srv.URL+"/jobs")
	require.NoError(t, err)
	assert.Contains(t, string(body), `class="job"`)
	assert.Equal(t, "jobmarket-test", gotUA)
}

func TestCollyFetcher_NonSuccessIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewCollyFetcher(testOptions())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, observability.ErrorNetwork, fe.ErrorKind())
}

func TestCollyFetcher_RetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Attempts = 2
	f := NewCollyFetcher(opts)
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCollyFetcher_SingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewCollyFetcher(testOptions())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPoliteClient_FetchAndAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/private" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	p := NewPoliteClient(testOptions())
	body, err := p.Fetch(context.Background(), srv.URL+"/public")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	_, err = p.Fetch(context.Background(), srv.URL+"/private")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, observability.ErrorAuth, observability.ClassifyError(err))
}

func TestPoliteClient_RespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /jobs\n"))
			return
		}
		_, _ = w.Write([]byte("page"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RespectRobots = true
	p := NewPoliteClient(opts)

	_, err := p.Fetch(context.Background(), srv.URL+"/jobs")
	assert.ErrorIs(t, err, ErrRobotsDisallowed)

	body, err := p.Fetch(context.Background(), srv.URL+"/about")
	require.NoError(t, err)
	assert.Equal(t, "page", string(body))
}

type limitedFetcher interface {
	Fetcher
	HostLimiter
}

func TestSetHostLimit(t *testing.T) {
	fetchers := map[string]func() limitedFetcher{
		"colly":  func() limitedFetcher { return NewCollyFetcher(testOptions()) },
		"polite": func() limitedFetcher { return NewPoliteClient(testOptions()) },
	}

	for name, build := range fetchers {
		t.Run(name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			f := build()
			f.SetHostLimit("127.0.0.1", time.Hour, 1)

			_, err := f.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_, err = f.Fetch(ctx, srv.URL)
			require.Error(t, err)
			var fe *FetchError
			assert.ErrorAs(t, err, &fe)
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		})
	}
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.html")
	require.NoError(t, os.WriteFile(path, []byte("<html></html>"), 0o644))

	body, err := FileFetcher{}.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(body))

	_, err = FileFetcher{}.Fetch(context.Background(), filepath.Join(dir, "missing.html"))
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestThrottleBounds(t *testing.T) {
	th := NewThrottle(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := th.next()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}

	var nilThrottle *Throttle
	assert.NoError(t, nilThrottle.Wait(context.Background()))
	assert.Equal(t, 5*time.Millisecond, NewThrottle(5*time.Millisecond, 0).next())
}

func TestThrottleHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewThrottle(time.Hour, 2*time.Hour).Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/jobs"))
	assert.True(t, IsRemote("HTTP://example.com"))
	assert.False(t, IsRemote("samples/sample_jobs_page.html"))
	assert.False(t, IsRemote("file:///tmp/jobs.html"))
}
