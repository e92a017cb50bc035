// Package analytics computes the dashboard aggregates over stored postings.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/baxromumarov/job-market-analytics/internal/store"
)

const (
	DefaultTopRoles  = 10
	DefaultTopSkills = 30
	DefaultBins      = 30
	RecentLimit      = 200
	unknownRole      = "Unknown"
)

type RemoteFilter string

const (
	RemoteAny    RemoteFilter = "any"
	RemoteOnly   RemoteFilter = "remote"
	RemoteOnsite RemoteFilter = "onsite"
)

// ParseRemoteFilter accepts any, remote, onsite and a few spellings of each.
func ParseRemoteFilter(s string) RemoteFilter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote", "remote-only", "true", "yes":
		return RemoteOnly
	case "onsite", "on-site", "on-site-only", "false", "no":
		return RemoteOnsite
	default:
		return RemoteAny
	}
}

// Filter narrows postings by case-insensitive substrings and the remote flag.
type Filter struct {
	TitleContains   string       `json:"title,omitempty"`
	CompanyContains string       `json:"company,omitempty"`
	Remote          RemoteFilter `json:"remote,omitempty"`
}

func (f Filter) Match(p store.PostingRow) bool {
	if f.TitleContains != "" && !containsFold(p.Title, f.TitleContains) {
		return false
	}
	if f.CompanyContains != "" && !containsFold(p.Company, f.CompanyContains) {
		return false
	}
	switch f.Remote {
	case RemoteOnly:
		return p.Remote != nil && *p.Remote
	case RemoteOnsite:
		return p.Remote != nil && !*p.Remote
	}
	return true
}

func (f Filter) Apply(rows []store.PostingRow) []store.PostingRow {
	out := make([]store.PostingRow, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func containsFold(field *string, sub string) bool {
	if field == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*field), strings.ToLower(sub))
}

type Options struct {
	Filter    Filter
	TopRoles  int
	TopSkills int
	Bins      int
}

func (o Options) withDefaults() Options {
	if o.TopRoles <= 0 {
		o.TopRoles = DefaultTopRoles
	}
	if o.TopSkills <= 0 {
		o.TopSkills = DefaultTopSkills
	}
	if o.Bins <= 0 {
		o.Bins = DefaultBins
	}
	return o
}

type Overview struct {
	Total           int `json:"total"`
	UniqueCompanies int `json:"unique_companies"`
	// RemotePct is over postings with a known remote flag; nil when none is known.
	RemotePct *float64 `json:"remote_pct"`
}

type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Report struct {
	Filter          Filter             `json:"filter"`
	Overview        Overview           `json:"overview"`
	TopRoles        []Count            `json:"top_roles"`
	TopSkills       []Count            `json:"top_skills"`
	SalaryHistogram []Bin              `json:"salary_histogram"`
	Trend           []TrendPoint       `json:"trend"`
	Recent          []store.PostingRow `json:"recent"`
}

// Build filters rows and computes every aggregate of the report.
func Build(rows []store.PostingRow, opts Options) Report {
	opts = opts.withDefaults()
	q := opts.Filter.Apply(rows)
	return Report{
		Filter:          opts.Filter,
		Overview:        Summarize(q),
		TopRoles:        TopRoles(q, opts.TopRoles),
		TopSkills:       TopSkills(q, opts.TopSkills),
		SalaryHistogram: SalaryHistogram(q, opts.Bins),
		Trend:           Trend(q),
		Recent:          Recent(q, RecentLimit),
	}
}

func Summarize(rows []store.PostingRow) Overview {
	companies := make(map[string]struct{})
	var known, remote int
	for _, r := range rows {
		if r.Company != nil {
			companies[*r.Company] = struct{}{}
		}
		if r.Remote != nil {
			known++
			if *r.Remote {
				remote++
			}
		}
	}
	ov := Overview{Total: len(rows), UniqueCompanies: len(companies)}
	if known > 0 {
		pct := math.Round(float64(remote)/float64(known)*1000) / 10
		ov.RemotePct = &pct
	}
	return ov
}

// TopRoles counts titles case-insensitively; each group is labelled with the
// first spelling seen.
func TopRoles(rows []store.PostingRow, n int) []Count {
	folder := cases.Fold()
	labels := make(map[string]string)
	counts := make(map[string]int)
	for _, r := range rows {
		title := unknownRole
		if r.Title != nil && strings.TrimSpace(*r.Title) != "" {
			title = strings.TrimSpace(*r.Title)
		}
		key := folder.String(title)
		if _, ok := labels[key]; !ok {
			labels[key] = title
		}
		counts[key]++
	}
	out := make([]Count, 0, len(counts))
	for key, c := range counts {
		out = append(out, Count{Label: labels[key], Count: c})
	}
	return topN(out, n)
}

// TopSkills counts naive requirement tokens: commas split like spaces and only
// alphanumeric tokens longer than one character are kept.
func TopSkills(rows []store.PostingRow, n int) []Count {
	counts := make(map[string]int)
	for _, r := range rows {
		if r.Requirements == nil {
			continue
		}
		for _, tok := range strings.Fields(strings.ReplaceAll(*r.Requirements, ",", " ")) {
			tok = strings.ToLower(tok)
			if len([]rune(tok)) > 1 && isAlnum(tok) {
				counts[tok]++
			}
		}
	}
	out := make([]Count, 0, len(counts))
	for tok, c := range counts {
		out = append(out, Count{Label: tok, Count: c})
	}
	return topN(out, n)
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func topN(counts []Count, n int) []Count {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Label < counts[j].Label
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// SalaryHistogram buckets salary_min into equal-width bins spanning the
// observed range. The last bin includes its upper edge.
func SalaryHistogram(rows []store.PostingRow, bins int) []Bin {
	var values []float64
	for _, r := range rows {
		if r.SalaryMin != nil {
			values = append(values, *r.SalaryMin)
		}
	}
	if len(values) == 0 || bins <= 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return []Bin{{Lower: lo, Upper: hi, Count: len(values)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i].Lower = lo + float64(i)*width
		out[i].Upper = lo + float64(i+1)*width
	}
	out[bins-1].Upper = hi
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	return out
}

// Trend counts postings per UTC scrape date, oldest first.
func Trend(rows []store.PostingRow) []TrendPoint {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.ScrapedAt.UTC().Format(time.DateOnly)]++
	}
	out := make([]TrendPoint, 0, len(counts))
	for d, c := range counts {
		out = append(out, TrendPoint{Date: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Recent returns up to n rows, newest scrape first.
func Recent(rows []store.PostingRow, n int) []store.PostingRow {
	out := append([]store.PostingRow(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScrapedAt.After(out[j].ScrapedAt)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
