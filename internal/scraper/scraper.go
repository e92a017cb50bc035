// Package scraper turns raw documents into RawJob records. HTML sources go
// through ParseCards; the JSearch API maps provider JSON directly.
package scraper

import (
	"context"
	"fmt"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
	"github.com/baxromumarov/job-market-analytics/internal/salary"
)

// RawJob is one posting as extracted, before normalization. A nil field is
// unknown.
type RawJob struct {
	Source       *string
	Title        *string
	Company      *string
	Location     *string
	SalaryRaw    *string
	Description  *string
	Requirements *string
	URL          *string

	// Salary is set by providers that report split salary fields. The
	// pipeline then skips free-text parsing.
	Salary *salary.Range
	// Remote is set by providers that report an explicit remote flag.
	Remote *bool
}

// Extractor produces the raw records of one source, fetching or rendering as
// needed.
type Extractor interface {
	Name() string
	Extract(ctx context.Context) ([]RawJob, error)
}

// ParseError reports a document that could not be parsed at all.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) ErrorKind() string {
	return observability.ErrorParsing
}

func strPtr(s string) *string {
	return &s
}
