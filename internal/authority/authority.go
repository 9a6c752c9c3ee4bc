// Package authority scores domains and publication types for ranking and
// source-quality computation.
package authority

import "strings"

// premiumDomains are established publications scored 0.95.
var premiumDomains = map[string]bool{
	"nytimes.com": true, "wsj.com": true, "ft.com": true, "economist.com": true,
	"reuters.com": true, "bloomberg.com": true, "apnews.com": true,
	"bbc.com": true, "bbc.co.uk": true, "theguardian.com": true,
	"washingtonpost.com": true, "nature.com": true, "science.org": true,
	"spiegel.de": true, "zeit.de": true, "faz.net": true, "handelsblatt.com": true,
}

// industryDomains are recognized trade and tech publications scored 0.85.
var industryDomains = map[string]bool{
	"techcrunch.com": true, "wired.com": true, "arstechnica.com": true,
	"theverge.com": true, "heise.de": true, "golem.de": true,
	"utilitydive.com": true, "greentechmedia.com": true, "pv-magazine.com": true,
	"canarymedia.com": true, "electrek.co": true, "cleantechnica.com": true,
	"spectrum.ieee.org": true, "mckinsey.com": true, "statista.com": true,
}

// blogPlatforms host mostly personal writing, scored 0.6.
var blogPlatforms = []string{
	"medium.com", "substack.com", "wordpress.com", "blogspot.com",
	"tumblr.com", "dev.to", "hashnode.dev", "ghost.io",
}

// DomainScore returns the authority tier for a domain:
// .gov/.edu 1.0, premium 0.95, industry 0.85, blog platforms 0.6,
// unknown 0.5.
func DomainScore(domain string) float64 {
	domain = normalize(domain)
	if domain == "" {
		return 0.5
	}
	if strings.HasSuffix(domain, ".gov") || strings.HasSuffix(domain, ".edu") ||
		strings.Contains(domain, ".gov.") || strings.Contains(domain, ".edu.") {
		return 1.0
	}
	if premiumDomains[domain] {
		return 0.95
	}
	if industryDomains[domain] {
		return 0.85
	}
	for _, platform := range blogPlatforms {
		if domain == platform || strings.HasSuffix(domain, "."+platform) {
			return 0.6
		}
	}
	return 0.5
}

// PublicationType is the auto-detected publication category.
type PublicationType string

const (
	TypeAcademic PublicationType = "academic"
	TypeNews     PublicationType = "news"
	TypeIndustry PublicationType = "industry"
	TypeAnalysis PublicationType = "analysis"
	TypeBlog     PublicationType = "blog"
	TypeSocial   PublicationType = "social"
	TypeUnknown  PublicationType = "unknown"
)

var socialDomains = map[string]bool{
	"reddit.com": true, "twitter.com": true, "x.com": true,
	"facebook.com": true, "linkedin.com": true, "youtube.com": true,
	"news.ycombinator.com": true, "mastodon.social": true,
}

// DetectType infers the publication type from domain and path hints.
func DetectType(domain, path string) PublicationType {
	domain = normalize(domain)
	path = strings.ToLower(path)

	switch {
	case strings.HasSuffix(domain, ".edu") || strings.Contains(domain, "arxiv") ||
		strings.Contains(domain, "scholar") || strings.Contains(path, "/paper") ||
		strings.Contains(path, "/abs/") || domain == "nature.com" || domain == "science.org":
		return TypeAcademic
	case socialDomains[domain]:
		return TypeSocial
	case premiumDomains[domain] || strings.Contains(domain, "news") ||
		strings.Contains(path, "/news/"):
		return TypeNews
	case industryDomains[domain]:
		return TypeIndustry
	case strings.Contains(path, "/research/") || strings.Contains(path, "/report") ||
		strings.Contains(path, "/analysis") || strings.Contains(path, "/insights"):
		return TypeAnalysis
	case strings.Contains(path, "/blog") || isBlogPlatform(domain):
		return TypeBlog
	default:
		return TypeUnknown
	}
}

// TypeScore maps a publication type to its quality weight.
func TypeScore(t PublicationType) float64 {
	switch t {
	case TypeAcademic:
		return 1.0
	case TypeNews:
		return 0.9
	case TypeIndustry:
		return 0.85
	case TypeAnalysis:
		return 0.8
	case TypeBlog:
		return 0.6
	case TypeSocial:
		return 0.4
	default:
		return 0.5
	}
}

func isBlogPlatform(domain string) bool {
	for _, platform := range blogPlatforms {
		if domain == platform || strings.HasSuffix(domain, "."+platform) {
			return true
		}
	}
	return false
}

func normalize(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
}
