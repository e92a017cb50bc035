package scraper

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/config"
	"github.com/baxromumarov/job-market-analytics/internal/httpx"
)

// Deps carries the collaborators New wires into an extractor.
type Deps struct {
	// Fetcher serves remote static targets; local paths always use httpx.FileFetcher.
	Fetcher  httpx.Fetcher
	Renderer Renderer
	API      APIClient
	JSearch  config.JSearch
	Logger   zerolog.Logger
}

// New builds the extractor for a configured source.
func New(src config.Source, deps Deps) (Extractor, error) {
	logger := deps.Logger.With().Str("source", src.Name).Logger()
	opts := CardOptions{
		Source:    src.Name,
		Selectors: Selectors(src.Selectors),
	}

	switch src.Kind {
	case config.KindStatic, "":
		var f httpx.Fetcher = httpx.FileFetcher{}
		if httpx.IsRemote(src.URL) {
			if deps.Fetcher == nil {
				return nil, fmt.Errorf("source %s: no fetcher configured", src.Name)
			}
			f = deps.Fetcher
			applyRateLimit(f, src, logger)
		}
		return &StaticHTMLExtractor{Fetcher: f, Target: src.URL, Options: opts, Logger: logger}, nil

	case config.KindRendered:
		if deps.Renderer == nil {
			return nil, fmt.Errorf("source %s: no renderer configured", src.Name)
		}
		return &RenderedHTMLExtractor{Renderer: deps.Renderer, Target: RenderTarget(src.URL), Options: opts, Logger: logger}, nil

	case config.KindJSearch:
		if deps.API == nil {
			return nil, fmt.Errorf("source %s: no api client configured", src.Name)
		}
		return &JSearchExtractor{
			Client:   deps.API,
			Endpoint: deps.JSearch.Endpoint,
			Host:     deps.JSearch.Host,
			APIKey:   deps.JSearch.APIKey,
			Query:    src.Query,
			Location: src.Location,
			Pages:    src.Pages,
			Source:   src.Name,
			Logger:   logger,
		}, nil
	}
	return nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
}

func applyRateLimit(f httpx.Fetcher, src config.Source, logger zerolog.Logger) {
	if src.RateLimit == nil {
		return
	}
	limiter, ok := f.(httpx.HostLimiter)
	if !ok {
		logger.Warn().Msg("fetcher has no per-host limits, rate_limit ignored")
		return
	}
	u, err := url.Parse(src.URL)
	if err != nil || u.Hostname() == "" {
		return
	}
	limiter.SetHostLimit(u.Hostname(), src.RateLimit.Per, src.RateLimit.Burst)
}

// RenderTarget turns local paths into file:// URLs the browser can load.
func RenderTarget(target string) string {
	if target == "" || httpx.IsRemote(target) || strings.HasPrefix(target, "file://") {
		return target
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return target
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
