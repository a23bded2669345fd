// Package source maps article URLs to normalized outlet names.
package source

import (
	"net/url"
	"strings"
	"unicode"
)

// Unknown is returned whenever a URL cannot be attributed to an outlet.
const Unknown = "Unknown"

type mapping struct {
	domain string
	name   string
}

// Ordered lookup table; first match wins. Subdomain entries must come before
// their parent domain would shadow them.
var sourceTable = []mapping{
	{"moxie.foxnews.com", "Fox News"},
	{"foxnews.com", "Fox News"},
	{"cnn.com", "CNN"},
	{"reuters.com", "Reuters"},
	{"bbc.co.uk", "BBC"},
	{"bbc.com", "BBC"},
	{"nytimes.com", "New York Times"},
	{"washingtonpost.com", "Washington Post"},
	{"nbcnews.com", "NBC News"},
	{"abcnews.com", "ABC News"},
	{"abcnews.go.com", "ABC News"},
	{"npr.org", "NPR"},
	{"jpost.com", "Jerusalem Post"},
	{"tehrantimes.com", "Tehran Times"},
	{"aljazeera.com", "Al Jazeera"},
	{"timesofindia.indiatimes.com", "Times of India"},
	{"scmp.com", "South China Morning Post"},
	{"rt.com", "RT News"},
	{"alarabiya.net", "Al Arabiya"},
}

// Extract derives a human-readable outlet name from an article URL. It never
// fails: unmatched domains fall back to a cleaned-up first DNS label, and any
// parse problem yields Unknown.
func Extract(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Unknown
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Unknown
	}

	for _, m := range sourceTable {
		if strings.Contains(host, m.domain) {
			return m.name
		}
	}

	// Fallback: strip common prefixes and title-case the first label.
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "english.")

	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return Unknown
	}
	return titleCase(label)
}

func titleCase(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
