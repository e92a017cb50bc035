package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Selectors name the CSS selectors of a job card and its fields.
type Selectors struct {
	Card         string
	Title        string
	Company      string
	Location     string
	Salary       string
	Description  string
	Requirements string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Card:         ".job",
		Title:        ".title",
		Company:      ".company",
		Location:     ".location",
		Salary:       ".salary",
		Description:  ".description",
		Requirements: ".requirements",
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.Card == "" {
		s.Card = d.Card
	}
	if s.Title == "" {
		s.Title = d.Title
	}
	if s.Company == "" {
		s.Company = d.Company
	}
	if s.Location == "" {
		s.Location = d.Location
	}
	if s.Salary == "" {
		s.Salary = d.Salary
	}
	if s.Description == "" {
		s.Description = d.Description
	}
	if s.Requirements == "" {
		s.Requirements = d.Requirements
	}
	return s
}

type CardOptions struct {
	// Source is stamped on every record.
	Source string
	// BaseURL resolves relative card links when it is an absolute URL.
	BaseURL   string
	Selectors Selectors
}

// ParseCards extracts one RawJob per card in document order. Missing fields
// are nil; only a document that cannot be tokenized is an error. A page with
// no matching cards falls back to its schema.org JobPosting blocks.
func ParseCards(page string, opts CardOptions) ([]RawJob, error) {
	// An HTML5 parser recovers from any markup, so only a failing reader
	// gets here.
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, &ParseError{Source: opts.Source, Err: err}
	}
	sel := opts.Selectors.withDefaults()
	base := parseBase(opts.BaseURL)

	doc := goquery.NewDocumentFromNode(root)
	var jobs []RawJob
	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		job := RawJob{
			Title:        fieldText(card, sel.Title),
			Company:      fieldText(card, sel.Company),
			Location:     fieldText(card, sel.Location),
			SalaryRaw:    fieldText(card, sel.Salary),
			Description:  fieldText(card, sel.Description),
			Requirements: fieldText(card, sel.Requirements),
			URL:          cardURL(card, base),
		}
		if opts.Source != "" {
			job.Source = strPtr(opts.Source)
		}
		jobs = append(jobs, job)
	})
	if len(jobs) == 0 {
		jobs = parseJSONLD(doc, opts)
	}
	return jobs, nil
}

func fieldText(card *goquery.Selection, selector string) *string {
	el := card.Find(selector).First()
	if el.Length() == 0 {
		return nil
	}
	text := cleanText(el.Text())
	if text == "" {
		return nil
	}
	return &text
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func cardURL(card *goquery.Selection, base *url.URL) *string {
	href, ok := card.Attr("data-url")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		href, ok = card.Find("a[href]").First().Attr("href")
		href = strings.TrimSpace(href)
	}
	if !ok || href == "" {
		return nil
	}
	resolved := resolveURL(base, href)
	return &resolved
}

func parseBase(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	return u
}

func resolveURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
