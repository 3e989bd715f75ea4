package scrape

import (
	"net/url"
	"path"
	"strings"
)

// DefaultSkipDomains are social networks whose pages are never fetched.
var DefaultSkipDomains = []string{
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"youtube.com",
	"tiktok.com",
}

// defaultExcludePatterns drop pages that rarely describe the company.
var defaultExcludePatterns = []string{
	"/careers/*",
	"/jobs/*",
	"/*.pdf",
	"/*.zip",
}

// URLFilter decides which candidate URLs are worth fetching. Paths use
// glob-style patterns; a trailing "/*" also matches nested paths.
type URLFilter struct {
	skipDomains []string
	patterns    []string
}

// NewURLFilter builds a filter. Nil arguments select the defaults; an empty
// non-nil slice disables that check.
func NewURLFilter(skipDomains, patterns []string) *URLFilter {
	if skipDomains == nil {
		skipDomains = DefaultSkipDomains
	}
	if patterns == nil {
		patterns = defaultExcludePatterns
	}
	f := &URLFilter{}
	for _, d := range skipDomains {
		f.skipDomains = append(f.skipDomains, strings.ToLower(strings.TrimSpace(d)))
	}
	for _, p := range patterns {
		f.patterns = append(f.patterns, strings.ToLower(p))
	}
	return f
}

// SkipReason returns why rawURL should not be fetched, or "" when it should.
func (f *URLFilter) SkipReason(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "invalid url"
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range f.skipDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return "social network"
		}
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range f.patterns {
		if matchSegmented(pattern, p) {
			return "excluded path " + pattern
		}
	}
	return ""
}

// Allowed reports whether rawURL passes the filter.
func (f *URLFilter) Allowed(rawURL string) bool {
	return f.SkipReason(rawURL) == ""
}

// matchSegmented matches "/blog/*" against "/blog/post" and also against
// "/blog/a/b/c".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	return false
}
