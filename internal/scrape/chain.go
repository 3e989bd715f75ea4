package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atlas-research/internal/resilience"
)

// Chain tries scrapers in priority order and returns the first success.
type Chain struct {
	Filter   *URLFilter
	scrapers []Scraper
	guard    *resilience.Guard
	timeout  time.Duration
}

// NewChain creates a Chain. Each scraper call goes through guard with the
// given per-call timeout; a nil guard calls scrapers directly.
func NewChain(filter *URLFilter, guard *resilience.Guard, timeout time.Duration, scrapers ...Scraper) *Chain {
	if filter == nil {
		filter = NewURLFilter(nil, nil)
	}
	return &Chain{Filter: filter, scrapers: scrapers, guard: guard, timeout: timeout}
}

// SkipReason reports why targetURL would not be fetched, or "".
func (c *Chain) SkipReason(targetURL string) string {
	return c.Filter.SkipReason(targetURL)
}

// Scrape fetches targetURL with the first scraper that succeeds.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if reason := c.Filter.SkipReason(targetURL); reason != "" {
		return nil, eris.Errorf("scrape: %s skipped: %s", targetURL, reason)
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := c.call(ctx, s, targetURL)
		if err == nil && result != nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

func (c *Chain) call(ctx context.Context, s Scraper, targetURL string) (*Result, error) {
	if c.guard != nil {
		return resilience.Call(ctx, c.guard, s.Name(), "scrape", c.timeout, func(ctx context.Context) (*Result, error) {
			return s.Scrape(ctx, targetURL)
		})
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return s.Scrape(ctx, targetURL)
}
