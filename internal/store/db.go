package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return New(db), nil
}

// New wraps an already opened handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates the job_postings relation when it does not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return wrapErr("init schema", "", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO job_postings (source, job_title, company, location, salary_raw, salary_min, salary_max, salary_currency, remote, description, requirements, url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (url) DO UPDATE SET
    source = EXCLUDED.source,
    job_title = EXCLUDED.job_title,
    company = EXCLUDED.company,
    location = EXCLUDED.location,
    salary_raw = EXCLUDED.salary_raw,
    salary_min = EXCLUDED.salary_min,
    salary_max = EXCLUDED.salary_max,
    salary_currency = EXCLUDED.salary_currency,
    remote = EXCLUDED.remote,
    description = EXCLUDED.description,
    requirements = EXCLUDED.requirements,
    updated_at = NOW()
`

// Upsert inserts p or overwrites the row with the same url. scraped_at keeps
// the time of the first insert.
func (s *Store) Upsert(ctx context.Context, p Posting) (err error) {
	if p.URL == nil || strings.TrimSpace(*p.URL) == "" {
		return &StoreError{Op: "upsert", Err: ErrMissingURL}
	}
	url := *p.URL

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", url, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertSQL,
		p.Source,
		p.Title,
		p.Company,
		p.Location,
		p.SalaryRaw,
		p.SalaryMin,
		p.SalaryMax,
		p.SalaryCurrency,
		p.Remote,
		p.Description,
		p.Requirements,
		url,
	); err != nil {
		return wrapErr("upsert", url, err)
	}

	if err = tx.Commit(); err != nil {
		return wrapErr("commit", url, err)
	}
	return nil
}

func clampLimit(limit int, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

const (
	DefaultRecentLimit = 10000
	maxRecentLimit     = 50000
)

// ListRecent returns up to limit postings, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]PostingRow, error) {
	limit = clampLimit(limit, DefaultRecentLimit, maxRecentLimit)

	rows, err := s.db.QueryContext(ctx, `
SELECT
    id,
    source,
    scraped_at,
    updated_at,
    job_title,
    company,
    location,
    salary_raw,
    salary_min,
    salary_max,
    salary_currency,
    remote,
    description,
    requirements,
    url
FROM job_postings
ORDER BY scraped_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, wrapErr("list recent", "", err)
	}
	defer rows.Close()

	var out []PostingRow
	for rows.Next() {
		var (
			r              PostingRow
			source         sql.NullString
			title          sql.NullString
			company        sql.NullString
			location       sql.NullString
			salaryRaw      sql.NullString
			salaryMin      sql.NullFloat64
			salaryMax      sql.NullFloat64
			salaryCurrency sql.NullString
			remote         sql.NullBool
			description    sql.NullString
			requirements   sql.NullString
			url            sql.NullString
		)

		if err := rows.Scan(
			&r.ID,
			&source,
			&r.ScrapedAt,
			&r.UpdatedAt,
			&title,
			&company,
			&location,
			&salaryRaw,
			&salaryMin,
			&salaryMax,
			&salaryCurrency,
			&remote,
			&description,
			&requirements,
			&url,
		); err != nil {
			return nil, wrapErr("scan posting", "", err)
		}

		r.Source = nullString(source)
		r.Title = nullString(title)
		r.Company = nullString(company)
		r.Location = nullString(location)
		r.SalaryRaw = nullString(salaryRaw)
		r.SalaryMin = nullFloat(salaryMin)
		r.SalaryMax = nullFloat(salaryMax)
		r.SalaryCurrency = nullString(salaryCurrency)
		r.Remote = nullBool(remote)
		r.Description = nullString(description)
		r.Requirements = nullString(requirements)
		r.URL = nullString(url)

		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list recent", "", err)
	}
	return out, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
