// Package scrape fetches candidate pages for research through an ordered
// chain of fetchers: a plain HTTP client first, then hosted readers.
package scrape

import (
	"context"

	"github.com/sells-group/atlas-research/internal/model"
)

// Result holds a scraped page with its source.
type Result struct {
	Page   model.CrawledPage
	Source string // e.g. "local_http", "jina", "firecrawl"
	// Tokens is the reader-reported token count, zero when not metered.
	Tokens int
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
