package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/httpx"
	"github.com/baxromumarov/job-market-analytics/internal/salary"
)

const (
	DefaultJSearchEndpoint = "https://jsearch.p.rapidapi.com/search"
	DefaultJSearchHost     = "jsearch.p.rapidapi.com"
	jsearchSource          = "jsearch"
)

var ErrMissingAPIKey = fmt.Errorf("jsearch api key is not set: %w", httpx.ErrUnauthorized)

// APIClient executes a prepared request and returns the body of a 2xx
// response. *httpx.PoliteClient satisfies it.
type APIClient interface {
	Get(req *http.Request) ([]byte, error)
}

type JSearchExtractor struct {
	Client   APIClient
	Endpoint string
	Host     string
	APIKey   string
	Query    string
	Location string
	Pages    int
	// Source defaults to "jsearch".
	Source string
	Logger zerolog.Logger
}

func (e *JSearchExtractor) Name() string {
	if e.Source == "" {
		return jsearchSource
	}
	return e.Source
}

// Extract requests pages 1..Pages in order and returns every item.
func (e *JSearchExtractor) Extract(ctx context.Context) ([]RawJob, error) {
	endpoint := e.Endpoint
	if endpoint == "" {
		endpoint = DefaultJSearchEndpoint
	}
	if strings.TrimSpace(e.APIKey) == "" {
		return nil, &httpx.FetchError{URL: endpoint, Err: ErrMissingAPIKey}
	}
	pages := e.Pages
	if pages <= 0 {
		pages = 1
	}

	var all []RawJob
	for page := 1; page <= pages; page++ {
		req, err := e.newRequest(ctx, endpoint, page)
		if err != nil {
			return nil, &httpx.FetchError{URL: endpoint, Err: err}
		}
		body, err := e.Client.Get(req)
		if err != nil {
			return nil, err
		}
		jobs, err := MapJSearch(body, e.Name())
		if err != nil {
			return nil, err
		}
		e.Logger.Info().Str("source", e.Name()).Int("page", page).Int("count", len(jobs)).Msg("fetched jsearch page")
		all = append(all, jobs...)
	}
	return all, nil
}

func (e *JSearchExtractor) newRequest(ctx context.Context, endpoint string, page int) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("query", e.Query+" in "+e.Location)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	host := e.Host
	if host == "" {
		host = DefaultJSearchHost
	}
	req.Header.Set("x-rapidapi-key", e.APIKey)
	req.Header.Set("x-rapidapi-host", host)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

type jsearchResponse struct {
	Data []jsearchJob `json:"data"`
}

type jsearchJob struct {
	Title          *string  `json:"job_title"`
	EmployerName   *string  `json:"employer_name"`
	City           *string  `json:"job_city"`
	Country        *string  `json:"job_country"`
	SalaryMin      *float64 `json:"job_salary_min"`
	SalaryMax      *float64 `json:"job_salary_max"`
	SalaryCurrency *string  `json:"job_salary_currency"`
	IsRemote       *bool    `json:"job_is_remote"`
	Description    *string  `json:"job_description"`
	RequiredSkills []string `json:"job_required_skills"`
	ApplyLink      *string  `json:"job_apply_link"`
}

// MapJSearch maps one JSearch response page onto RawJob records. Salary and
// remote values pass through as reported.
func MapJSearch(body []byte, source string) ([]RawJob, error) {
	var resp jsearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	jobs := make([]RawJob, 0, len(resp.Data))
	for _, j := range resp.Data {
		jobs = append(jobs, RawJob{
			Source:       strPtr(source),
			Title:        j.Title,
			Company:      j.EmployerName,
			Location:     firstNonEmpty(j.City, j.Country),
			SalaryRaw:    salaryDisplay(j.SalaryCurrency, j.SalaryMin, j.SalaryMax),
			Description:  j.Description,
			Requirements: joinSkills(j.RequiredSkills),
			URL:          j.ApplyLink,
			Salary: &salary.Range{
				Min:      j.SalaryMin,
				Max:      j.SalaryMax,
				Currency: j.SalaryCurrency,
			},
			Remote: j.IsRemote,
		})
	}
	return jobs, nil
}

func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return v
		}
	}
	return nil
}

// salaryDisplay renders "<currency> <min> - <max>" for audit only; it is never
// parsed back.
func salaryDisplay(currency *string, lo, hi *float64) *string {
	if currency == nil || *currency == "" {
		return nil
	}
	s := *currency + " " + formatAmount(lo) + " - " + formatAmount(hi)
	return &s
}

func formatAmount(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func joinSkills(skills []string) *string {
	var kept []string
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return strPtr(strings.Join(kept, ", "))
}
