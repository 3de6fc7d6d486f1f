package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	daysAgo   = regexp.MustCompile(`(\d+)\+?\s*(?:days?|d)\s*ago`)
	weeksAgo  = regexp.MustCompile(`(\d+)\+?\s*(?:weeks?|w)\s*ago`)
	monthsAgo = regexp.MustCompile(`(\d+)\+?\s*(?:months?|mo)\s*ago`)
	hoursAgo  = regexp.MustCompile(`\d+\+?\s*(?:hours?|hrs?|h|minutes?|mins?|m)\s*ago`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParsePostedDate turns "3 days ago", "yesterday" or an absolute date into a
// UTC date relative to now. It returns nil when nothing matches.
func ParsePostedDate(text string, now time.Time) *time.Time {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil
	}
	low := strings.ToLower(raw)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	back := func(days int) *time.Time {
		d := today.AddDate(0, 0, -days)
		return &d
	}

	switch {
	case strings.Contains(low, "yesterday"):
		return back(1)
	case strings.Contains(low, "just") || strings.Contains(low, "today") ||
		strings.Contains(low, "now") || strings.Contains(low, "< 24") ||
		hoursAgo.MatchString(low):
		return back(0)
	}

	if m := daysAgo.FindStringSubmatch(low); m != nil {
		n, _ := strconv.Atoi(m[1])
		return back(n)
	}
	if m := weeksAgo.FindStringSubmatch(low); m != nil {
		n, _ := strconv.Atoi(m[1])
		return back(n * 7)
	}
	if m := monthsAgo.FindStringSubmatch(low); m != nil {
		n, _ := strconv.Atoi(m[1])
		return back(n * 30)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// FromUnixMillis converts an epoch-milliseconds timestamp, returning nil for
// zero.
func FromUnixMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
