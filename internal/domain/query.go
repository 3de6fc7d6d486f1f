package domain

import "strings"

// Query is the inbound search request.
type Query struct {
	Keywords     []string          `json:"keywords"`
	Location     string            `json:"location,omitempty"`
	Filters      map[string]string `json:"filters,omitempty"`
	Sources      []string          `json:"sources,omitempty"`
	MaxResults   int               `json:"max_results,omitempty"`
	ForceRefresh bool              `json:"force_refresh,omitempty"`
}

// Normalized trims blank keywords and source names and lower-cases source
// names. Keyword case is kept; matching is case-insensitive downstream.
func (q Query) Normalized() Query {
	out := q
	out.Keywords = nil
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			out.Keywords = append(out.Keywords, k)
		}
	}
	out.Sources = nil
	for _, s := range q.Sources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out.Sources = append(out.Sources, s)
		}
	}
	out.Location = strings.TrimSpace(q.Location)
	return out
}

// WantsRemote reports whether the location asks for remote-only postings.
func (q Query) WantsRemote() bool {
	if strings.EqualFold(q.Location, "remote") {
		return true
	}
	v := strings.ToLower(q.Filters["remote"])
	return v == "true" || v == "1" || v == "yes"
}
