package cmd

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/config"
	"github.com/baxromumarov/job-market-analytics/internal/scraper"
)

type Context struct {
	Ctx     context.Context
	Out     io.Writer
	Config  *config.Config
	Logger  zerolog.Logger
	Version string
	DryRun  bool

	// Renderer overrides the playwright renderer for rendered sources.
	Renderer scraper.Renderer
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}
