package store

import "time"

// Posting is a normalized job posting as handed to the store.
type Posting struct {
	Source         *string  `json:"source"`
	Title          *string  `json:"job_title"`
	Company        *string  `json:"company"`
	Location       *string  `json:"location"`
	SalaryRaw      *string  `json:"salary_raw"`
	SalaryMin      *float64 `json:"salary_min"`
	SalaryMax      *float64 `json:"salary_max"`
	SalaryCurrency *string  `json:"salary_currency"`
	Remote         *bool    `json:"remote"`
	Description    *string  `json:"description"`
	Requirements   *string  `json:"requirements"`
	URL            *string  `json:"url"`
}

// PostingRow is a stored posting.
type PostingRow struct {
	ID int `json:"id"`
	Posting
	ScrapedAt time.Time `json:"scraped_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
