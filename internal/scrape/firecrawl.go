package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/pkg/firecrawl"
)

// FirecrawlAdapter wraps Firecrawl's single-page scrape as the last resort
// in the chain.
type FirecrawlAdapter struct {
	client firecrawl.Client
}

// NewFirecrawlAdapter creates a FirecrawlAdapter.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{client: client}
}

func (f *FirecrawlAdapter) Name() string           { return "firecrawl" }
func (f *FirecrawlAdapter) Supports(_ string) bool { return true }

// Scrape fetches targetURL as main-content markdown.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape not successful: %s", resp.Data.Metadata.Error)
	}
	if strings.TrimSpace(resp.Data.Markdown) == "" {
		return nil, eris.New("firecrawl: empty page")
	}

	meta := resp.Data.Metadata
	pageURL := meta.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Result{
		Page: model.CrawledPage{
			URL:        pageURL,
			Title:      meta.Title,
			Markdown:   resp.Data.Markdown,
			StatusCode: meta.StatusCode,
		},
		Source: f.Name(),
	}, nil
}
