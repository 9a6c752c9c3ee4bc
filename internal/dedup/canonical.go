package dedup

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// trackingParams are query parameters stripped during canonicalization.
var trackingParams = map[string]bool{
	"gclid":       true,
	"fbclid":      true,
	"msclkid":     true,
	"igshid":      true,
	"mc_cid":      true,
	"mc_eid":      true,
	"ref":         true,
	"ref_src":     true,
	"spm":         true,
	"s_kwcid":     true,
	"_hsenc":      true,
	"_hsmi":       true,
	"vero_id":     true,
	"yclid":       true,
	"twclid":      true,
	"wickedid":    true,
	"cmpid":       true,
	"mkt_tok":     true,
	"trk":         true,
	"si":          true,
	"source":      false, // kept: often content-bearing
	"oly_anon_id": true,
	"oly_enc_id":  true,
}

// hstsHosts are hosts observed to enforce HTTPS; http URLs for these hosts
// are upgraded during canonicalization. The set grows at runtime when the
// fetcher observes an https redirect; hstsMu guards it.
var hstsMu sync.RWMutex

var hstsHosts = map[string]bool{
	"reddit.com":      true,
	"medium.com":      true,
	"github.com":      true,
	"nytimes.com":     true,
	"theguardian.com": true,
	"heise.de":        true,
	"spiegel.de":      true,
	"wikipedia.org":   true,
	"substack.com":    true,
	"bbc.co.uk":       true,
}

// CanonicalURL normalizes a URL for use as a deduplication key: lowercase
// host, strip www., drop the fragment, sort query params, drop tracking
// params, collapse the trailing slash, and upgrade to https for hosts known
// to enforce it. Invalid URLs are returned trimmed but otherwise unchanged.
// Canonicalization is idempotent: CanonicalURL(CanonicalURL(u)) == CanonicalURL(u).
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" && isHSTSHost(host) {
		scheme = "https"
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			q.Del(key)
		}
	}
	query := encodeSorted(q)

	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	if p := u.Port(); p != "" && p != defaultPort(scheme) {
		b.WriteString(":")
		b.WriteString(p)
	}
	b.WriteString(path)
	if query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}
	return b.String()
}

// ObserveSecureHost records that a host was seen serving https, so future
// http URLs for it are upgraded. Safe for concurrent use.
func ObserveSecureHost(host string) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return
	}
	hstsMu.Lock()
	hstsHosts[host] = true
	hstsMu.Unlock()
}

func isHSTSHost(host string) bool {
	hstsMu.RLock()
	defer hstsMu.RUnlock()

	if hstsHosts[host] {
		return true
	}
	// Match parent domains: news.bbc.co.uk -> bbc.co.uk.
	parts := strings.Split(host, ".")
	for i := 1; i < len(parts)-1; i++ {
		if hstsHosts[strings.Join(parts[i:], ".")] {
			return true
		}
	}
	return false
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// encodeSorted renders query values with deterministic key and value order.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteString("&")
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
