package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonLDPage = `<html><head>
<script type="application/ld+json">
{"@context": "https://schema.org", "@graph": [
  {"@type": "Organization", "name": "Ignored"},
  {
    "@type": "JobPosting",
    "title": "Platform Engineer",
    "url": "/careers/platform",
    "description": "<p>Run <b>Kubernetes</b> clusters.</p>",
    "hiringOrganization": {"@type": "Organization", "name": "Umbrella"},
    "jobLocation": {"@type": "Place", "address": {"addressLocality": "Berlin", "addressCountry": "DE"}},
    "skills": "Go, Kubernetes",
    "baseSalary": {"@type": "MonetaryAmount", "currency": "EUR",
      "value": {"@type": "QuantitativeValue", "minValue": 70000, "maxValue": 90000}}
  }
]}
</script>
<script type="application/ld+json">{"@type": ["JobPosting"], "title": "Support Engineer", "jobLocationType": "TELECOMMUTE"}</script>
<script type="application/ld+json">{ not json</script>
</head><body><p>No cards here.</p></body></html>`

func TestParseCardsFallsBackToJSONLD(t *testing.T) {
	jobs, err := ParseCards(jsonLDPage, CardOptions{Source: "careers", BaseURL: "https://umbrella.example/jobs"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	a := jobs[0]
	assert.Equal(t, "careers", deref(a.Source))
	assert.Equal(t, "Platform Engineer", deref(a.Title))
	assert.Equal(t, "https://umbrella.example/careers/platform", deref(a.URL))
	assert.Equal(t, "Run Kubernetes clusters.", deref(a.Description))
	assert.Equal(t, "Umbrella", deref(a.Company))
	assert.Equal(t, "Berlin, DE", deref(a.Location))
	assert.Equal(t, "Go, Kubernetes", deref(a.Requirements))
	require.NotNil(t, a.Salary)
	assert.Equal(t, 70000.0, *a.Salary.Min)
	assert.Equal(t, 90000.0, *a.Salary.Max)
	assert.Equal(t, "EUR", *a.Salary.Currency)
	assert.Equal(t, "EUR 70000 - 90000", deref(a.SalaryRaw))

	b := jobs[1]
	assert.Equal(t, "Remote", deref(b.Location))
	assert.Nil(t, b.URL)
	assert.Nil(t, b.Salary)
}

func TestParseCardsPrefersCardsOverJSONLD(t *testing.T) {
	page := `<script type="application/ld+json">{"@type":"JobPosting","title":"From JSON-LD"}</script>
<div class="job" data-url="u"><span class="title">From card</span></div>`
	jobs, err := ParseCards(page, CardOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "From card", deref(jobs[0].Title))
}

func TestBaseSalaryVariants(t *testing.T) {
	rng, display, ok := baseSalary(map[string]any{"currency": "USD", "value": "120,000"})
	require.True(t, ok)
	assert.Equal(t, 120000.0, *rng.Min)
	assert.Nil(t, rng.Max)
	assert.Equal(t, "USD 120000", display)

	_, _, ok = baseSalary(map[string]any{"currency": "USD"})
	assert.False(t, ok)
	_, _, ok = baseSalary("competitive")
	assert.False(t, ok)
}
