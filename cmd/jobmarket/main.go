package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/cmd"
	"github.com/baxromumarov/job-market-analytics/internal/config"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	cli := cmd.NewCLI()
	versionString := buildVersion()

	parser, err := cmd.NewParser(cli, versionString)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger := newLogger(cli.Verbose, cli.Pretty)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx := &cmd.Context{
		Ctx:     ctx,
		Out:     os.Stdout,
		Config:  cfg,
		Logger:  logger,
		Version: versionString,
		DryRun:  cli.DryRun,
	}

	if err := kctx.Run(runCtx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

func newLogger(verbose, pretty bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func buildVersion() string {
	if commit == "" {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, commit)
}
