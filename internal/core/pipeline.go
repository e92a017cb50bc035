package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
	"github.com/baxromumarov/job-market-analytics/internal/salary"
	"github.com/baxromumarov/job-market-analytics/internal/scraper"
	"github.com/baxromumarov/job-market-analytics/internal/store"
)

const maxCurrencyLen = 16

// JobStore is the persistence boundary the pipeline writes to.
type JobStore interface {
	InitSchema(ctx context.Context) error
	Upsert(ctx context.Context, p store.Posting) error
}

// RecordError is the upsert failure of one extracted record.
type RecordError struct {
	Index int
	URL   string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Pipeline runs one extractor end to end: schema, extraction, normalization
// and one upsert per record in extraction order.
type Pipeline struct {
	store  JobStore
	logger zerolog.Logger
	// ContinueOnError keeps upserting after a failed record and returns the
	// joined RecordErrors. By default the first failure aborts the run.
	ContinueOnError bool

	parseSalary func(string) salary.Range
}

func NewPipeline(st JobStore, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:       st,
		logger:      logger,
		parseSalary: salary.Parse,
	}
}

// Run returns the number of records upserted.
func (p *Pipeline) Run(ctx context.Context, ext scraper.Extractor) (int, error) {
	start := time.Now()
	defer func() {
		observability.ObserveRunDuration(time.Since(start).Seconds())
	}()
	logger := p.logger.With().Str("source", ext.Name()).Logger()

	if err := p.store.InitSchema(ctx); err != nil {
		observability.RecordError(err, "schema")
		return 0, fmt.Errorf("init schema: %w", err)
	}

	raws, err := ext.Extract(ctx)
	if err != nil {
		observability.RecordError(err, "extract")
		return 0, fmt.Errorf("extract %s: %w", ext.Name(), err)
	}
	observability.AddRecordsExtracted(len(raws))

	var (
		count int
		errs  []error
	)
	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		posting := p.normalize(raw, logger)
		if err := p.store.Upsert(ctx, posting); err != nil {
			observability.RecordError(err, "upsert")
			recErr := &RecordError{Index: i, URL: deref(raw.URL), Err: err}
			if !p.ContinueOnError {
				return count, recErr
			}
			logger.Warn().Err(err).Int("index", i).Str("url", recErr.URL).Msg("skipping record")
			errs = append(errs, recErr)
			continue
		}
		observability.IncRecordsUpserted()
		count++
	}

	logger.Info().Int("extracted", len(raws)).Int("count", count).Dur("took", time.Since(start)).Msg("ingestion run finished")
	return count, errors.Join(errs...)
}

// RunAll runs each extractor in turn and sums the upserted counts. It stops
// at the first failing source unless ContinueOnError is set.
func (p *Pipeline) RunAll(ctx context.Context, exts []scraper.Extractor) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, ext := range exts {
		n, err := p.Run(ctx, ext)
		total += n
		if err == nil {
			continue
		}
		if !p.ContinueOnError {
			return total, err
		}
		errs = append(errs, err)
	}
	return total, errors.Join(errs...)
}

// Normalize derives the salary and remote fields of raw using the free-text
// salary parser.
func Normalize(raw scraper.RawJob) store.Posting {
	return normalize(raw, salary.Parse, zerolog.Nop())
}

func (p *Pipeline) normalize(raw scraper.RawJob, logger zerolog.Logger) store.Posting {
	return normalize(raw, p.parseSalary, logger)
}

func normalize(raw scraper.RawJob, parse func(string) salary.Range, logger zerolog.Logger) store.Posting {
	posting := store.Posting{
		Source:       raw.Source,
		Title:        raw.Title,
		Company:      raw.Company,
		Location:     raw.Location,
		SalaryRaw:    raw.SalaryRaw,
		Description:  raw.Description,
		Requirements: raw.Requirements,
		URL:          raw.URL,
	}

	var rng salary.Range
	switch {
	case raw.Salary != nil:
		rng = *raw.Salary
	case raw.SalaryRaw != nil:
		rng = parse(*raw.SalaryRaw)
		if rng.Empty() && strings.TrimSpace(*raw.SalaryRaw) != "" {
			observability.IncSalaryUnparsed()
			logger.Debug().Str("url", deref(raw.URL)).Str("salary_raw", *raw.SalaryRaw).Msg("salary not recognised")
		}
	}
	posting.SalaryMin = rng.Min
	posting.SalaryMax = rng.Max
	posting.SalaryCurrency = truncateCurrency(rng.Currency)

	if raw.Remote != nil {
		posting.Remote = raw.Remote
	} else {
		remote := IsRemoteLocation(raw.Location)
		posting.Remote = &remote
	}
	return posting
}

// IsRemoteLocation reports whether location mentions "remote". A nil
// location is not remote.
func IsRemoteLocation(location *string) bool {
	if location == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*location), "remote")
}

func truncateCurrency(c *string) *string {
	if c == nil || utf8.RuneCountInString(*c) <= maxCurrencyLen {
		return c
	}
	s := string([]rune(*c)[:maxCurrencyLen])
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
