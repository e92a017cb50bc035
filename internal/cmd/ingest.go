package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/baxromumarov/job-market-analytics/internal/browser"
	"github.com/baxromumarov/job-market-analytics/internal/cache"
	"github.com/baxromumarov/job-market-analytics/internal/config"
	"github.com/baxromumarov/job-market-analytics/internal/core"
	"github.com/baxromumarov/job-market-analytics/internal/httpx"
	"github.com/baxromumarov/job-market-analytics/internal/observability"
	"github.com/baxromumarov/job-market-analytics/internal/scraper"
	"github.com/baxromumarov/job-market-analytics/internal/store"
)

const defaultHTMLSource = "sample"

type HTMLCmd struct {
	Target     string `arg:"" help:"URL or local path of the page."`
	Render     bool   `help:"Render the page in headless Chromium before parsing."`
	SourceName string `name:"source-name" help:"Source label stored with each posting." default:"sample"`
	Card       string `help:"CSS selector of a job card." default:".job"`
}

func (h *HTMLCmd) Run(ctx *Context) error {
	name := h.SourceName
	if name == "" {
		name = defaultHTMLSource
	}
	src := config.Source{
		Name:      name,
		Kind:      config.KindStatic,
		URL:       h.Target,
		Selectors: config.Selectors{Card: h.Card},
	}
	if h.Render {
		src.Kind = config.KindRendered
	}
	ext, err := scraper.New(src, buildDeps(ctx))
	if err != nil {
		return err
	}
	return runIngest(ctx, []scraper.Extractor{ext})
}

type JSearchCmd struct {
	Query    string `help:"Search query (default from config)."`
	Location string `help:"Search location (default from config)."`
	Pages    int    `help:"Number of result pages to request (default from config)."`
	APIKey   string `name:"api-key" help:"JSearch API key; overrides JSEARCH_API_KEY."`
}

func (j *JSearchCmd) Run(ctx *Context) error {
	cfg := ctx.Config.JSearch
	src := config.Source{
		Name:     "jsearch",
		Kind:     config.KindJSearch,
		Query:    firstSet(j.Query, cfg.Query),
		Location: firstSet(j.Location, cfg.Location),
		Pages:    cfg.Pages,
	}
	if j.Pages > 0 {
		src.Pages = j.Pages
	}
	deps := buildDeps(ctx)
	if j.APIKey != "" {
		deps.JSearch.APIKey = j.APIKey
	}
	ext, err := scraper.New(src, deps)
	if err != nil {
		return err
	}
	return runIngest(ctx, []scraper.Extractor{ext})
}

type SourcesCmd struct {
	Names []string `arg:"" optional:"" help:"Source names to ingest (default: all configured)."`
}

func (s *SourcesCmd) Run(ctx *Context) error {
	sources, err := selectSources(ctx.Config, s.Names)
	if err != nil {
		return err
	}
	deps := buildDeps(ctx)
	exts := make([]scraper.Extractor, 0, len(sources))
	for _, src := range sources {
		ext, err := scraper.New(src, deps)
		if err != nil {
			return err
		}
		exts = append(exts, ext)
	}
	return runIngest(ctx, exts)
}

func selectSources(cfg *config.Config, names []string) ([]config.Source, error) {
	if len(names) == 0 {
		if len(cfg.Sources) == 0 {
			return nil, fmt.Errorf("no sources configured")
		}
		return cfg.Sources, nil
	}
	out := make([]config.Source, 0, len(names))
	for _, name := range names {
		src, ok := cfg.Source(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out = append(out, src)
	}
	return out, nil
}

func runIngest(ctx *Context, exts []scraper.Extractor) error {
	runCtx := ctx.context()
	st, closer, err := openStore(runCtx, ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	pipeline := core.NewPipeline(st, ctx.Logger)
	pipeline.ContinueOnError = ctx.Config.Pipeline.ContinueOnError

	before := observability.Snapshot()
	count, runErr := pipeline.RunAll(runCtx, exts)
	stats := observability.Snapshot().Since(before)

	ctx.Logger.Info().
		Uint64("pages_fetched", stats.PagesFetched).
		Uint64("pages_rendered", stats.PagesRendered).
		Uint64("records_extracted", stats.RecordsExtracted).
		Uint64("records_upserted", stats.RecordsUpserted).
		Uint64("salary_unparsed", stats.SalaryUnparsed).
		Uint64("errors", stats.ErrorsTotal).
		Interface("errors_by_stage", stats.ErrorsByStage).
		Msg("ingest stats")

	if _, err := fmt.Fprintf(ctx.Out, "upserted %d records\n", count); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(ctx.Out, formatStats(stats)); err != nil {
		return err
	}
	if count > 0 {
		invalidateCache(runCtx, ctx)
	}
	return runErr
}

// formatStats renders the counters of one ingest run as key=value pairs.
func formatStats(s observability.StatsSnapshot) string {
	line := fmt.Sprintf("stats pages_fetched=%d pages_rendered=%d records_extracted=%d records_upserted=%d salary_unparsed=%d errors=%d",
		s.PagesFetched, s.PagesRendered, s.RecordsExtracted, s.RecordsUpserted, s.SalaryUnparsed, s.ErrorsTotal)
	stages := make([]string, 0, len(s.ErrorsByStage))
	for stage := range s.ErrorsByStage {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		line += fmt.Sprintf(" errors_%s=%d", stage, s.ErrorsByStage[stage])
	}
	return line
}

// jobStore is what both ingest and migrate need from a store.
type jobStore interface {
	core.JobStore
	ListRecent(ctx context.Context, limit int) ([]store.PostingRow, error)
}

func openStore(runCtx context.Context, ctx *Context) (jobStore, io.Closer, error) {
	if ctx.DryRun {
		ctx.Logger.Info().Msg("dry run: using in-memory store")
		return store.NewMemoryStore(), nopCloser{}, nil
	}
	st, err := store.NewStore(runCtx, ctx.Config.Database.DSN())
	if err != nil {
		return nil, nil, err
	}
	return st, st, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func invalidateCache(runCtx context.Context, ctx *Context) {
	if ctx.DryRun || ctx.Config.Redis.URL == "" {
		return
	}
	c, err := cache.Dial(runCtx, ctx.Config.Redis.URL, ctx.Config.Redis.Prefix, ctx.Config.Redis.TTL)
	if err != nil {
		ctx.Logger.Warn().Err(err).Msg("analytics cache unavailable")
		return
	}
	defer c.Close()
	n, err := c.Invalidate(runCtx)
	if err != nil {
		ctx.Logger.Warn().Err(err).Msg("invalidate analytics cache")
		return
	}
	ctx.Logger.Debug().Int("keys", n).Msg("analytics cache invalidated")
}

func buildDeps(ctx *Context) scraper.Deps {
	cfg := ctx.Config
	opts := httpx.Options{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.Fetch.Timeout,
		Attempts:      cfg.Fetch.Attempts,
		RespectRobots: cfg.Fetch.RespectRobots,
		Throttle:      httpx.NewThrottle(cfg.Throttle.Min, cfg.Throttle.Max),
		Logger:        ctx.Logger,
	}

	var fetcher httpx.Fetcher
	switch cfg.Fetch.Backend {
	case config.BackendHTTP:
		fetcher = httpx.NewPoliteClient(opts)
	default:
		fetcher = httpx.NewCollyFetcher(opts)
	}

	apiOpts := opts
	apiOpts.RespectRobots = false
	apiOpts.Throttle = nil

	renderer := ctx.Renderer
	if renderer == nil {
		renderer = browser.NewPlaywrightRenderer(cfg.Render.IsHeadless(), cfg.Render.Settle, cfg.Render.Timeout, cfg.Fetch.UserAgent, ctx.Logger)
	}

	return scraper.Deps{
		Fetcher:  fetcher,
		Renderer: renderer,
		API:      httpx.NewPoliteClient(apiOpts),
		JSearch:  cfg.JSearch,
		Logger:   ctx.Logger,
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
