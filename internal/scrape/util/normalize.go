package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobscout-engine/internal/domain"
)

func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// HTMLText returns the visible text of an HTML fragment with one line per
// block element. Input that fails to parse is returned cleaned but otherwise
// untouched.
func HTMLText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return CleanText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CleanText(fragment)
	}
	return BlockText(doc.Selection)
}

// BlockText flattens sel to text, keeping block elements on their own lines
// and marking list items with "- " so requirement bullets survive.
func BlockText(sel *goquery.Selection) string {
	sel.Find("li").PrependHtml("- ")
	sel.Find("li, p, br, div, h1, h2, h3, h4, h5").AppendHtml("\n")

	var lines []string
	for _, line := range strings.Split(sel.Text(), "\n") {
		if line = CleanText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func NormalizeLocation(loc string) string {
	loc = CleanText(loc)
	if loc == "" {
		return ""
	}

	loc = strings.TrimPrefix(loc, "Location:")
	loc = strings.TrimPrefix(loc, "LOCATIONS:")
	loc = strings.TrimSpace(loc)

	parts := strings.Split(loc, ",")
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = CleanText(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

// ParseLocationType infers the work arrangement from free text. "Remote" next
// to "hybrid" counts as hybrid.
func ParseLocationType(parts ...string) domain.LocationType {
	blob := strings.ToLower(strings.Join(parts, " "))

	switch {
	case strings.Contains(blob, "remote") && strings.Contains(blob, "hybrid"):
		return domain.LocationHybrid
	case strings.Contains(blob, "remote"):
		return domain.LocationRemote
	case strings.Contains(blob, "hybrid"):
		return domain.LocationHybrid
	case strings.Contains(blob, "on-site") || strings.Contains(blob, "onsite") ||
		strings.Contains(blob, "on site") || strings.Contains(blob, "in-office"):
		return domain.LocationOnsite
	default:
		return domain.LocationUnknown
	}
}
