package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/baxromumarov/job-market-analytics/internal/observability"
)

var ErrMissingURL = errors.New("posting has no url")

// StoreError wraps failures of the persistence layer. Code carries the
// Postgres SQLSTATE when the driver reported one.
type StoreError struct {
	Op   string
	URL  string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	msg := e.Op
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" (sqlstate %s)", e.Code)
	}
	return msg + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) ErrorKind() string {
	return observability.ErrorStore
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == string(uniqueViolation)
	}
	return false
}

const uniqueViolation pq.ErrorCode = "23505"

func wrapErr(op, url string, err error) error {
	if err == nil {
		return nil
	}
	se := &StoreError{Op: op, URL: url, Err: err}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		se.Code = string(pqErr.Code)
	}
	return se
}
