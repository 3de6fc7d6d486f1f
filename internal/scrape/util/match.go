package util

import (
	"strings"

	"jobscout-engine/internal/domain"
)

// MatchesKeywords reports whether any keyword phrase has all of its words in
// the title, or in the description when the title alone misses. No keywords
// matches everything.
func MatchesKeywords(title, description string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	t := strings.ToLower(title)
	d := strings.ToLower(description)

	for _, kw := range keywords {
		words := strings.Fields(strings.ToLower(kw))
		if len(words) == 0 {
			continue
		}
		if containsAll(t, words) || (d != "" && containsAll(d, words)) {
			return true
		}
	}
	return false
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

// MatchesLocation reports whether a job location satisfies the requested one.
// "remote" matches remote and hybrid jobs; anything else is a case-insensitive
// substring test in either direction.
func MatchesLocation(jobLocation string, lt domain.LocationType, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return true
	}
	loc := strings.ToLower(jobLocation)

	if want == "remote" {
		return lt == domain.LocationRemote || lt == domain.LocationHybrid || strings.Contains(loc, "remote")
	}
	if loc == "" {
		return false
	}
	return strings.Contains(loc, want) || strings.Contains(want, loc)
}
