package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// LogoFinder discovers a company logo from its homepage markup.
type LogoFinder struct {
	local    *LocalScraper
	fallback string
	scheme   string
}

// NewLogoFinder creates a LogoFinder. fallback is a fmt template taking the
// domain, used when the homepage yields nothing; "" disables it.
func NewLogoFinder(local *LocalScraper, fallback string) *LogoFinder {
	return &LogoFinder{local: local, fallback: fallback, scheme: "https"}
}

// Find fetches the domain's homepage and returns the best logo candidate, then
// the fallback. An error means no logo could be determined.
func (f *LogoFinder) Find(ctx context.Context, domain string) (string, error) {
	if domain == "" {
		return "", eris.New("logo: no domain")
	}

	homepage := f.scheme + "://" + domain + "/"
	res, err := f.local.Scrape(ctx, homepage)
	if err == nil {
		if logo := FindLogoInHTML(res.Page.HTML, res.Page.URL); logo != "" {
			return logo, nil
		}
	}
	if ctx.Err() != nil {
		return "", eris.Wrap(ctx.Err(), "logo: cancelled")
	}
	if f.fallback != "" {
		return fmt.Sprintf(f.fallback, domain), nil
	}
	if err != nil {
		return "", eris.Wrap(err, "logo: fetch homepage")
	}
	return "", eris.Errorf("logo: none found on %s", homepage)
}

// FindLogoInHTML scans markup for, in order of preference: an <img> whose
// src, alt, class or id mentions "logo"; an og:image meta tag; an icon link.
// Relative URLs are resolved against pageURL.
func FindLogoInHTML(markup, pageURL string) string {
	if markup == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var img, og, icon string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				if img == "" && mentionsLogo(n) {
					img = attr(n, "src")
				}
			case "meta":
				if og == "" && strings.EqualFold(attr(n, "property"), "og:image") {
					og = attr(n, "content")
				}
			case "link":
				rel := strings.ToLower(attr(n, "rel"))
				if strings.Contains(rel, "icon") {
					// apple-touch-icon is larger than a favicon.
					if icon == "" || strings.Contains(rel, "apple-touch-icon") {
						icon = attr(n, "href")
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, candidate := range []string{img, og, icon} {
		if resolved := resolve(pageURL, candidate); resolved != "" {
			return resolved
		}
	}
	return ""
}

func mentionsLogo(n *html.Node) bool {
	for _, key := range []string{"src", "alt", "class", "id"} {
		if strings.Contains(strings.ToLower(attr(n, key)), "logo") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolve(base, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
