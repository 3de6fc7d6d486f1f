package util

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var locationSelectors = []string{
	".location",
	".opening .location",
	".job__location",
	".app-title + .location",
	"[data-testid='job-location']",
	"[data-testid='location']",
	"[data-id='job-card-location']",
}

// FindLocation looks for a location on a job detail page: schema.org
// JobPosting data first, then well-known elements, then a "Location:" label
// in the og:description or body text.
func FindLocation(doc *goquery.Document) string {
	if loc := jsonLDLocation(doc.Selection); loc != "" {
		return NormalizeLocation(loc)
	}
	return FindLocationIn(doc.Selection)
}

// FindLocationIn applies the element and label rules to part of a page, such
// as one listing card.
func FindLocationIn(sel *goquery.Selection) string {
	for _, css := range locationSelectors {
		if t := CleanText(sel.Find(css).First().Text()); t != "" {
			return NormalizeLocation(t)
		}
	}
	if v, ok := sel.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if loc := labeledLocation(v); loc != "" {
			return NormalizeLocation(loc)
		}
	}
	if loc := labeledLocation(sel.Find("body").Text()); loc != "" {
		return NormalizeLocation(loc)
	}
	return ""
}

type ldPosting struct {
	Type            any             `json:"@type"`
	JobLocationType string          `json:"jobLocationType"`
	JobLocation     json.RawMessage `json:"jobLocation"`
}

type ldPlace struct {
	Address struct {
		Locality string          `json:"addressLocality"`
		Region   string          `json:"addressRegion"`
		Country  json.RawMessage `json:"addressCountry"`
	} `json:"address"`
}

// jsonLDLocation reads the first JobPosting in the page's ld+json blocks.
// TELECOMMUTE postings without a place read as "Remote".
func jsonLDLocation(sel *goquery.Selection) string {
	var out string
	sel.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var p ldPosting
		if json.Unmarshal([]byte(s.Text()), &p) != nil || !isJobPosting(p.Type) {
			return true
		}
		var places []ldPlace
		if json.Unmarshal(p.JobLocation, &places) != nil {
			var one ldPlace
			if json.Unmarshal(p.JobLocation, &one) == nil {
				places = []ldPlace{one}
			}
		}
		var parts []string
		for _, pl := range places {
			a := pl.Address
			if loc := strings.Join(nonBlank(a.Locality, a.Region, countryName(a.Country)), ", "); loc != "" {
				parts = append(parts, loc)
			}
		}
		if strings.EqualFold(p.JobLocationType, "TELECOMMUTE") {
			parts = append([]string{"Remote"}, parts...)
		}
		out = strings.Join(parts, "; ")
		return out == ""
	})
	return out
}

func isJobPosting(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, x := range v {
			if s, _ := x.(string); s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

// countryName accepts both "US" and {"@type":"Country","name":"US"}.
func countryName(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var c struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &c)
	return c.Name
}

func nonBlank(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var locationLabels = []string{"job location:", "locations:", "location:"}

// labeledLocation returns the text after a "Location:" label, cut at the
// first line or separator break.
func labeledLocation(s string) string {
	low := strings.ToLower(s)
	for _, lab := range locationLabels {
		i := strings.Index(low, lab)
		if i < 0 {
			continue
		}
		rest := strings.TrimSpace(s[i+len(lab):])
		for _, cut := range []string{"\n", "\r", " | ", " · "} {
			if j := strings.Index(rest, cut); j >= 0 {
				rest = rest[:j]
			}
		}
		if rest = CleanText(rest); rest != "" && len(rest) <= 80 {
			return rest
		}
	}
	return ""
}
