package scraper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/httpx"
)

// StaticHTMLExtractor fetches one page and parses its job cards.
type StaticHTMLExtractor struct {
	Fetcher httpx.Fetcher
	Target  string
	Options CardOptions
	Logger  zerolog.Logger
}

func (e *StaticHTMLExtractor) Name() string {
	return e.Options.Source
}

func (e *StaticHTMLExtractor) Extract(ctx context.Context) ([]RawJob, error) {
	body, err := e.Fetcher.Fetch(ctx, e.Target)
	if err != nil {
		return nil, err
	}
	jobs, err := ParseCards(string(body), e.cardOptions())
	if err != nil {
		return nil, err
	}
	e.Logger.Info().Str("source", e.Name()).Str("url", e.Target).Int("count", len(jobs)).Msg("extracted job cards")
	return jobs, nil
}

func (e *StaticHTMLExtractor) cardOptions() CardOptions {
	opts := e.Options
	if opts.BaseURL == "" {
		opts.BaseURL = e.Target
	}
	return opts
}

// Renderer loads a URL in a browser and returns the rendered markup.
type Renderer interface {
	Render(ctx context.Context, target string) (string, error)
}

// RenderedHTMLExtractor renders the page first so client-side scripts can
// populate the cards.
type RenderedHTMLExtractor struct {
	Renderer Renderer
	Target   string
	Options  CardOptions
	Logger   zerolog.Logger
}

func (e *RenderedHTMLExtractor) Name() string {
	return e.Options.Source
}

func (e *RenderedHTMLExtractor) Extract(ctx context.Context) ([]RawJob, error) {
	if e.Renderer == nil {
		return nil, fmt.Errorf("%s: no renderer configured", e.Name())
	}
	doc, err := e.Renderer.Render(ctx, e.Target)
	if err != nil {
		return nil, err
	}
	opts := e.Options
	if opts.BaseURL == "" {
		opts.BaseURL = e.Target
	}
	jobs, err := ParseCards(doc, opts)
	if err != nil {
		return nil, err
	}
	e.Logger.Info().Str("source", e.Name()).Str("url", e.Target).Int("count", len(jobs)).Msg("extracted rendered job cards")
	return jobs, nil
}
