package util

import (
	"regexp"
	"strings"
)

const maxRequirements = 20

var (
	requirementSections = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:requirements?|qualifications?|what you.?ll need|must have)[:\s]*\n((?:[ \t]*[-•*][ \t]*.+\n?)+)`),
		regexp.MustCompile(`(?i)(?:skills?|technologies|tech stack)[:\s]*\n((?:[ \t]*[-•*][ \t]*.+\n?)+)`),
	}
	bulletLine = regexp.MustCompile(`[-•*][ \t]*(.+)`)
)

var skillKeywords = []string{
	"Python", "JavaScript", "TypeScript", "Java", "C++", "C#", "Go", "Rust",
	"React", "Vue", "Angular", "Node.js", "Django", "FastAPI", "Flask",
	"AWS", "GCP", "Azure", "Docker", "Kubernetes", "Terraform",
	"PostgreSQL", "MySQL", "MongoDB", "Redis", "Elasticsearch",
	"Machine Learning", "Deep Learning", "NLP", "Computer Vision",
	"CI/CD", "Git", "Agile", "Scrum",
}

var skillPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(skillKeywords))
	for i, k := range skillKeywords {
		out[i] = regexp.MustCompile(`(?i)(?:^|[^a-z0-9+#.])` + regexp.QuoteMeta(k) + `(?:$|[^a-z0-9+#])`)
	}
	return out
}()

// ExtractRequirements collects bullet points under requirement-like headings
// and any well-known skills named in the text, in order of appearance and
// capped at 20.
func ExtractRequirements(description string) []string {
	if strings.TrimSpace(description) == "" {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = CleanText(s)
		k := strings.ToLower(s)
		if len(s) <= 3 || seen[k] || len(out) >= maxRequirements {
			return
		}
		seen[k] = true
		out = append(out, s)
	}

	for _, re := range requirementSections {
		for _, m := range re.FindAllStringSubmatch(description, -1) {
			for _, b := range bulletLine.FindAllStringSubmatch(m[1], -1) {
				add(b[1])
			}
		}
	}

	for i, re := range skillPatterns {
		if len(out) >= maxRequirements {
			break
		}
		k := skillKeywords[i]
		if seen[strings.ToLower(k)] || !re.MatchString(description) {
			continue
		}
		// short names like "Go" bypass the length floor used for bullets
		seen[strings.ToLower(k)] = true
		out = append(out, k)
	}
	return out
}
