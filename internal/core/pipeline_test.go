package core

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-market-analytics/internal/salary"
	"github.com/baxromumarov/job-market-analytics/internal/scraper"
	"github.com/baxromumarov/job-market-analytics/internal/store"
)

func ptr[T any](v T) *T { return &v }

type recordingStore struct {
	initCalls int
	upserts   []store.Posting
	failOn    map[string]error
	initErr   error
}

func (s *recordingStore) InitSchema(context.Context) error {
	s.initCalls++
	return s.initErr
}

func (s *recordingStore) Upsert(_ context.Context, p store.Posting) error {
	if p.URL != nil {
		if err, ok := s.failOn[*p.URL]; ok {
			return err
		}
	}
	s.upserts = append(s.upserts, p)
	return nil
}

type staticExtractor struct {
	name string
	jobs []scraper.RawJob
	err  error
}

func (e staticExtractor) Name() string { return e.name }

func (e staticExtractor) Extract(context.Context) ([]scraper.RawJob, error) {
	return e.jobs, e.err
}

func cardsABC(t *testing.T) scraper.Extractor {
	t.Helper()
	doc := `<div class="job" data-url="https://x/A"><span class="title">A</span><span class="location">Remote, USA</span><span class="salary">$115,000 - $140,000</span></div>
<div class="job" data-url="https://x/B"><span class="title">B</span><span class="location">Austin, TX</span></div>
<div class="job" data-url="https://x/C"><span class="title">C</span><span class="salary">Competitive</span></div>`
	jobs, err := scraper.ParseCards(doc, scraper.CardOptions{Source: "sample"})
	require.NoError(t, err)
	return staticExtractor{name: "sample", jobs: jobs}
}

func TestRunUpsertsInExtractionOrder(t *testing.T) {
	st := &recordingStore{}
	p := NewPipeline(st, zerolog.Nop())

	n, err := p.Run(context.Background(), cardsABC(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, st.initCalls)

	require.Len(t, st.upserts, 3)
	var order []string
	for _, u := range st.upserts {
		order = append(order, *u.URL)
	}
	assert.Equal(t, []string{"https://x/A", "https://x/B", "https://x/C"}, order)

	a := st.upserts[0]
	assert.Equal(t, 115000.0, *a.SalaryMin)
	assert.Equal(t, 140000.0, *a.SalaryMax)
	assert.Equal(t, "$", *a.SalaryCurrency)
	assert.True(t, *a.Remote)

	b := st.upserts[1]
	assert.Nil(t, b.SalaryRaw)
	assert.Nil(t, b.SalaryMin)
	assert.False(t, *b.Remote)

	c := st.upserts[2]
	assert.Equal(t, "Competitive", *c.SalaryRaw)
	assert.Nil(t, c.SalaryMin)
	assert.Nil(t, c.SalaryCurrency)
	require.NotNil(t, c.Remote, "nil location derives false, not nil")
	assert.False(t, *c.Remote)
}

func TestRunAPIRecordsBypassSalaryParser(t *testing.T) {
	st := &recordingStore{}
	p := NewPipeline(st, zerolog.Nop())
	parserCalls := 0
	p.parseSalary = func(s string) salary.Range {
		parserCalls++
		return salary.Parse(s)
	}

	ext := staticExtractor{name: "jsearch", jobs: []scraper.RawJob{{
		URL:       ptr("https://api/1"),
		Location:  ptr("Remote"),
		SalaryRaw: ptr("$ 90000 - 120000"),
		Salary:    &salary.Range{Min: ptr(90000.0), Max: ptr(120000.0), Currency: ptr("$")},
		Remote:    ptr(false),
	}}}

	n, err := p.Run(context.Background(), ext)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, parserCalls)

	got := st.upserts[0]
	assert.Equal(t, 90000.0, *got.SalaryMin)
	assert.Equal(t, 120000.0, *got.SalaryMax)
	assert.Equal(t, "$", *got.SalaryCurrency)
	assert.False(t, *got.Remote, "explicit remote flag is never overridden")
}

func TestRunAbortsOnFirstUpsertError(t *testing.T) {
	boom := errors.New("constraint violated")
	st := &recordingStore{failOn: map[string]error{"https://x/B": boom}}
	p := NewPipeline(st, zerolog.Nop())

	n, err := p.Run(context.Background(), cardsABC(t))
	assert.Equal(t, 1, n)
	require.ErrorIs(t, err, boom)

	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, 1, recErr.Index)
	assert.Equal(t, "https://x/B", recErr.URL)
	assert.Len(t, st.upserts, 1)
}

func TestRunContinueOnErrorCollects(t *testing.T) {
	boom := errors.New("constraint violated")
	st := &recordingStore{failOn: map[string]error{"https://x/B": boom}}
	p := NewPipeline(st, zerolog.Nop())
	p.ContinueOnError = true

	n, err := p.Run(context.Background(), cardsABC(t))
	assert.Equal(t, 2, n)
	require.ErrorIs(t, err, boom)
	require.Len(t, st.upserts, 2)
	assert.Equal(t, "https://x/C", *st.upserts[1].URL)
}

func TestRunPropagatesExtractAndSchemaErrors(t *testing.T) {
	extractErr := errors.New("fetch failed")
	st := &recordingStore{}
	p := NewPipeline(st, zerolog.Nop())

	n, err := p.Run(context.Background(), staticExtractor{name: "x", err: extractErr})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, extractErr)

	st.initErr = errors.New("db down")
	_, err = p.Run(context.Background(), cardsABC(t))
	assert.ErrorIs(t, err, st.initErr)
	assert.Empty(t, st.upserts)
}

func TestRunAll(t *testing.T) {
	st := &recordingStore{}
	p := NewPipeline(st, zerolog.Nop())
	failing := staticExtractor{name: "broken", err: errors.New("down")}

	n, err := p.RunAll(context.Background(), []scraper.Extractor{cardsABC(t), failing, cardsABC(t)})
	assert.Error(t, err)
	assert.Equal(t, 3, n)

	st.upserts = nil
	p.ContinueOnError = true
	n, err = p.RunAll(context.Background(), []scraper.Extractor{cardsABC(t), failing, cardsABC(t)})
	assert.Error(t, err)
	assert.Equal(t, 6, n)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		raw        scraper.RawJob
		wantRemote bool
		wantMin    *float64
	}{
		{
			name:       "remote token",
			raw:        scraper.RawJob{Location: ptr("Remote, USA")},
			wantRemote: true,
		},
		{
			name:       "case insensitive",
			raw:        scraper.RawJob{Location: ptr("Berlin (REMOTE friendly)")},
			wantRemote: true,
		},
		{
			name: "on site",
			raw:  scraper.RawJob{Location: ptr("Austin, TX")},
		},
		{
			name:    "single amount",
			raw:     scraper.RawJob{SalaryRaw: ptr("£50,000")},
			wantMin: ptr(50000.0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			require.NotNil(t, got.Remote)
			assert.Equal(t, tt.wantRemote, *got.Remote)
			assert.Equal(t, tt.wantMin, got.SalaryMin)
		})
	}
}

func TestNormalizeTruncatesCurrency(t *testing.T) {
	got := Normalize(scraper.RawJob{Salary: &salary.Range{Currency: ptr("Very Long Currency Name")}})
	require.NotNil(t, got.SalaryCurrency)
	assert.Equal(t, "Very Long Curren", *got.SalaryCurrency)
}
