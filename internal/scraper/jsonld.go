package scraper

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/job-market-analytics/internal/salary"
)

// parseJSONLD collects schema.org JobPosting objects from the ld+json
// scripts of a page. Blocks that do not decode are skipped.
func parseJSONLD(doc *goquery.Document, opts CardOptions) []RawJob {
	base := parseBase(opts.BaseURL)
	var jobs []RawJob
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return
		}
		findJobPostings(payload, &jobs)
	})

	for i := range jobs {
		if opts.Source != "" {
			jobs[i].Source = strPtr(opts.Source)
		}
		if jobs[i].URL != nil {
			resolved := resolveURL(base, *jobs[i].URL)
			jobs[i].URL = &resolved
		}
	}
	return jobs
}

func findJobPostings(payload any, out *[]RawJob) {
	switch t := payload.(type) {
	case map[string]any:
		if job := jobFromMap(t); job != nil {
			*out = append(*out, *job)
		}
		if graph, ok := t["@graph"].([]any); ok {
			for _, item := range graph {
				findJobPostings(item, out)
			}
		}
	case []any:
		for _, item := range t {
			findJobPostings(item, out)
		}
	}
}

func jobFromMap(payload map[string]any) *RawJob {
	if !isJobPostingType(payload["@type"]) {
		return nil
	}

	job := &RawJob{
		URL:         optional(stringField(payload["url"])),
		Title:       optional(cleanText(stringField(payload["title"]))),
		Description: optional(htmlText(stringField(payload["description"]))),
		Company:     optional(orgName(payload["hiringOrganization"])),
		Location:    optional(parseLocation(payload["jobLocation"])),
	}
	if job.Location == nil && strings.EqualFold(stringField(payload["jobLocationType"]), "TELECOMMUTE") {
		job.Location = strPtr("Remote")
	}
	if skills := stringField(payload["skills"]); skills != "" {
		job.Requirements = optional(cleanText(skills))
	}
	if rng, display, ok := baseSalary(payload["baseSalary"]); ok {
		job.Salary = &rng
		job.SalaryRaw = optional(display)
	}

	if job.Title == nil && job.Description == nil {
		return nil
	}
	return job
}

// baseSalary reads a MonetaryAmount. Its values are already split so they
// pass through like API salaries.
func baseSalary(v any) (salary.Range, string, bool) {
	amount, ok := v.(map[string]any)
	if !ok {
		return salary.Range{}, "", false
	}
	var rng salary.Range
	if cur := stringField(amount["currency"]); cur != "" {
		rng.Currency = &cur
	}
	switch value := amount["value"].(type) {
	case map[string]any:
		rng.Min = number(value["minValue"])
		rng.Max = number(value["maxValue"])
		if rng.Min == nil && rng.Max == nil {
			rng.Min = number(value["value"])
		}
	default:
		rng.Min = number(value)
	}
	if rng.Empty() {
		return salary.Range{}, "", false
	}

	parts := []string{}
	if rng.Currency != nil {
		parts = append(parts, *rng.Currency)
	}
	parts = append(parts, formatAmount(rng.Min))
	if rng.Max != nil {
		parts = append(parts, "-", formatAmount(rng.Max))
	}
	return rng, strings.Join(parts, " "), true
}

func number(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		r := salary.Parse("$" + strings.TrimSpace(t))
		return r.Min
	}
	return nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if val, ok := t["@value"]; ok {
			if str, ok2 := val.(string); ok2 {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

func isJobPostingType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func orgName(v any) string {
	if name := stringField(v); name != "" {
		return name
	}
	if org, ok := v.(map[string]any); ok {
		return stringField(org["name"])
	}
	return ""
}

func parseLocation(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if loc := parseLocation(item); loc != "" {
				return loc
			}
		}
	case map[string]any:
		if addr, ok := t["address"].(map[string]any); ok {
			return joinParts(
				stringField(addr["addressLocality"]),
				stringField(addr["addressRegion"]),
				stringField(addr["addressCountry"]),
			)
		}
		if name := stringField(t["name"]); name != "" {
			return name
		}
	}
	return ""
}

func joinParts(parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(p))
	}
	return strings.Join(out, ", ")
}

// htmlText flattens descriptions that embed markup.
func htmlText(s string) string {
	if !strings.Contains(s, "<") {
		return cleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s)
	}
	return cleanText(doc.Text())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
