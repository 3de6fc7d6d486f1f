package orchestrator

import (
	"cmp"
	"slices"
)

// defaultPriorities ranks sources from fast, reliable APIs down to slow,
// fragile browser-driven scrapers. Unlisted sources rank 0.
var defaultPriorities = map[string]int{
	"github":          100,
	"simplify":        95,
	"jobright":        90,
	"remoteok":        85,
	"hackernews":      80,
	"weworkremotely":  75,
	"google_dork":     70,
	"lever":           65,
	"greenhouse":      60,
	"smartrecruiters": 58,
	"ycombinator":     55,
	"workday":         50,
	"indeed":          40,
	"dice":            35,
	"wellfound":       30,
	"builtin":         30,
	"linkedin":        20,
	"glassdoor":       10,
}

// Priority returns the rank of a source; overrides win over the defaults.
func Priority(name string, overrides map[string]int) int {
	if p, ok := overrides[name]; ok {
		return p
	}
	return defaultPriorities[name]
}

// sortByPriority orders names by priority descending, then by name.
func sortByPriority(names []string, overrides map[string]int) {
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(Priority(b, overrides), Priority(a, overrides)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}

// Ordered returns a copy of names in the order a search starts them.
func Ordered(names []string, overrides map[string]int) []string {
	out := slices.Clone(names)
	sortByPriority(out, overrides)
	return out
}
