package browser

import (
	"math/rand/v2"
	"strings"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
}

var viewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1280, Height: 720},
}

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"America/Toronto",
}

const defaultLocale = "en-US"

type Viewport struct {
	Width  int
	Height int
}

// Profile is the fingerprint applied to one browser context. A non-empty
// Proxy ("http://host:port") gets its own Chrome process.
type Profile struct {
	UserAgent string
	Viewport  Viewport
	Timezone  string
	Locale    string
	Proxy     string
}

// RandomProfile samples a fingerprint from the built-in pools.
func RandomProfile() Profile {
	return Profile{
		UserAgent: userAgents[rand.IntN(len(userAgents))],
		Viewport:  viewports[rand.IntN(len(viewports))],
		Timezone:  timezones[rand.IntN(len(timezones))],
		Locale:    defaultLocale,
	}
}

// withDefaults fills empty fields of p with random picks.
func (p Profile) withDefaults() Profile {
	r := RandomProfile()
	if p.UserAgent == "" {
		p.UserAgent = r.UserAgent
	}
	if p.Viewport.Width <= 0 || p.Viewport.Height <= 0 {
		p.Viewport = r.Viewport
	}
	if p.Timezone == "" {
		p.Timezone = r.Timezone
	}
	if p.Locale == "" {
		p.Locale = defaultLocale
	}
	return p
}

// acceptLanguage renders "en-US,en;q=0.9" style headers.
func (p Profile) acceptLanguage() string {
	lang, _, _ := strings.Cut(p.Locale, "-")
	if lang == p.Locale {
		return p.Locale
	}
	return p.Locale + "," + lang + ";q=0.9"
}
