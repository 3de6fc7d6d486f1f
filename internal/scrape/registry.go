package scrape

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps source names to constructors. It is filled explicitly at
// startup.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

func (r *Registry) Register(name string, c Constructor) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || c == nil {
		return fmt.Errorf("register source %q: empty name or nil constructor", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ctors[name]; dup {
		return fmt.Errorf("register source %q: already registered", name)
	}
	r.ctors[name] = c
	return nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Lookup(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctors[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// New constructs the named source. Unknown names and constructor failures
// are permanent.
func (r *Registry) New(name string, deps Deps) (Source, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownSource)
	}
	s, err := c(deps)
	if err != nil {
		return nil, Permanent(fmt.Errorf("construct %s: %w", name, err))
	}
	return s, nil
}

// Resolve splits names into registered and unknown ones, deduplicated and in
// input order. Empty input resolves to every registered source.
func (r *Registry) Resolve(names []string) (known, unknown []string) {
	if len(names) == 0 {
		return r.Names(), nil
	}

	seen := map[string]bool{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		if _, ok := r.Lookup(n); ok {
			known = append(known, n)
		} else {
			unknown = append(unknown, n)
		}
	}
	return known, unknown
}
