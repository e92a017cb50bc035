package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/baxromumarov/job-market-analytics/internal/api"
	"github.com/baxromumarov/job-market-analytics/internal/cache"
)

type ServeCmd struct {
	Port    int  `help:"Listen port (default from config or PORT)."`
	NoCache bool `name:"no-cache" help:"Do not use the Redis analytics cache."`
}

func (s *ServeCmd) Run(ctx *Context) error {
	runCtx := ctx.context()
	cfg := ctx.Config
	if s.Port > 0 {
		cfg.Server.Port = s.Port
	}

	st, closer, err := openStore(runCtx, ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	var reportCache api.ReportCache
	if !s.NoCache && cfg.Redis.URL != "" {
		c, err := cache.Dial(runCtx, cfg.Redis.URL, cfg.Redis.Prefix, cfg.Redis.TTL)
		if err != nil {
			ctx.Logger.Warn().Err(err).Msg("analytics cache disabled")
		} else {
			defer c.Close()
			reportCache = c
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewServer(st, reportCache, cfg.Server.CORSOrigins, ctx.Logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		ctx.Logger.Info().Str("addr", srv.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx.Logger.Info().Msg("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
