package util

import (
	"net"
	"net/url"
	"strings"
)

// trackingParams are query keys that never identify a posting.
var trackingParams = map[string]bool{
	"gclid": true, "fbclid": true, "msclkid": true,
	"mc_cid": true, "mc_eid": true, "mkt_tok": true,
	"ref": true, "source": true, "src": true, "lever-source": true,
	"lever-origin": true, "gh_src": true, "trk": true,
}

// CanonicalizeURL returns the form of a posting URL used for fingerprints.
// Scheme and host are lower-cased, default ports and the fragment dropped,
// tracking parameters removed and the remaining query sorted. A trailing
// "/apply" or slash on the path names the same posting and is trimmed.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if host, port, err := net.SplitHostPort(u.Host); err == nil &&
		(u.Scheme == "https" && port == "443" || u.Scheme == "http" && port == "80") {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""

	u.Path = strings.TrimSuffix(u.Path, "/apply")
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	u.RawPath = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(k)
		}
	}
	// Encode sorts by key
	u.RawQuery = q.Encode()
	return u.String()
}

// Absolute resolves href against base, returning href unchanged when either
// fails to parse.
func Absolute(base, href string) string {
	href = strings.TrimSpace(href)
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
