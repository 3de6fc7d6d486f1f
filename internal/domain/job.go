package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

type LocationType string

const (
	LocationRemote  LocationType = "remote"
	LocationHybrid  LocationType = "hybrid"
	LocationOnsite  LocationType = "onsite"
	LocationUnknown LocationType = ""
)

// Job is a normalized posting. URL, Title, CompanyName, Description and
// Source are always set; everything else is best-effort.
type Job struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	Description string `json:"description"`
	Source      string `json:"source"`

	Location        string       `json:"location,omitempty"`
	LocationType    LocationType `json:"location_type,omitempty"`
	SalaryText      string       `json:"salary_text,omitempty"`
	SalaryMin       int          `json:"salary_min,omitempty"`
	SalaryMax       int          `json:"salary_max,omitempty"`
	SalaryCurrency  string       `json:"salary_currency,omitempty"`
	Requirements    []string     `json:"requirements,omitempty"`
	PostedDate      *time.Time   `json:"posted_date,omitempty"`
	PostedText      string       `json:"posted_text,omitempty"` // "2 days ago", etc.
	JobType         string       `json:"job_type,omitempty"`
	ExperienceLevel string       `json:"experience_level,omitempty"`
	CompanyLogo     string       `json:"company_logo,omitempty"`

	ScrapedAt time.Time      `json:"scraped_at"`
	RawData   map[string]any `json:"raw_data,omitempty"`
}

var (
	ErrMissingURL         = errors.New("job: missing url")
	ErrMissingTitle       = errors.New("job: missing title")
	ErrMissingCompany     = errors.New("job: missing company name")
	ErrMissingDescription = errors.New("job: missing description")
	ErrMissingSource      = errors.New("job: missing source")
)

// Validate reports the first required field that is empty. Sources that only
// have a listing fill Description with the title.
func (j Job) Validate() error {
	switch {
	case strings.TrimSpace(j.URL) == "":
		return ErrMissingURL
	case strings.TrimSpace(j.Title) == "":
		return ErrMissingTitle
	case strings.TrimSpace(j.CompanyName) == "":
		return ErrMissingCompany
	case strings.TrimSpace(j.Description) == "":
		return ErrMissingDescription
	case strings.TrimSpace(j.Source) == "":
		return ErrMissingSource
	}
	return nil
}

// Fingerprint is the dedup key: a hash of title, company and location after
// unicode normalization and lower-casing. Two postings republished under
// different URLs share a fingerprint.
func (j Job) Fingerprint() string {
	content := fingerprintPart(j.Title) + "|" + fingerprintPart(j.CompanyName) + "|" + fingerprintPart(j.Location)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

func fingerprintPart(s string) string {
	s = norm.NFKC.String(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (j Job) HasPostedDate() bool {
	return j.PostedDate != nil && !j.PostedDate.IsZero()
}
