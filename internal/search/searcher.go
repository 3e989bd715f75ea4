// Package search turns a research target into field queries and runs them
// against an ordered list of providers.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/resilience"
)

// Answer is the outcome of one query across the provider list. Provider is
// empty when no provider produced hits; Tried lists every provider called,
// in order; Failures holds one *model.ProviderFailure per provider that
// errored.
type Answer struct {
	Query    Query
	Provider string
	Hits     []model.SearchHit
	Text     string
	Tried    []string
	Failures []error
}

// Found reports whether any provider produced candidate pages.
func (a Answer) Found() bool {
	return len(a.Hits) > 0
}

// Searcher tries providers in order until one returns hits.
type Searcher struct {
	providers []Provider
	guard     *resilience.Guard
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewSearcher creates a Searcher. limiter is shared by every run in the
// process and may be nil; guard may be nil in tests.
func NewSearcher(guard *resilience.Guard, limiter *rate.Limiter, timeout time.Duration, providers ...Provider) *Searcher {
	return &Searcher{providers: providers, guard: guard, limiter: limiter, timeout: timeout}
}

// Providers returns the provider names in the order they are tried.
func (s *Searcher) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Search runs q. Provider failures are collected on the Answer; the only
// error returned is the context's.
func (s *Searcher) Search(ctx context.Context, q Query) (Answer, error) {
	ans := Answer{Query: q}
	for _, p := range s.providers {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return ans, eris.Wrap(err, "search: rate limit wait")
			}
		}

		ans.Tried = append(ans.Tried, p.Name())
		res, err := s.call(ctx, p, q)
		if ctx.Err() != nil {
			return ans, eris.Wrap(ctx.Err(), "search: cancelled")
		}
		if err != nil {
			zap.L().Debug("search: provider failed",
				zap.String("provider", p.Name()),
				zap.String("field", q.Field),
				zap.Error(err),
			)
			ans.Failures = append(ans.Failures, err)
			continue
		}

		hits := dedupe(res.Hits)
		if len(hits) == 0 {
			continue
		}
		ans.Provider = p.Name()
		ans.Hits = hits
		ans.Text = res.Text
		return ans, nil
	}
	return ans, nil
}

func (s *Searcher) call(ctx context.Context, p Provider, q Query) (*Result, error) {
	fn := func(ctx context.Context) (*Result, error) {
		res, err := p.Search(ctx, q)
		if err == nil && res == nil {
			res = &Result{}
		}
		return res, err
	}
	if s.guard != nil {
		return resilience.Call(ctx, s.guard, p.Name(), "search", s.timeout, fn)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := fn(ctx)
	if err != nil {
		return nil, model.NewProviderFailure(p.Name(), "search", err)
	}
	return res, nil
}

// dedupe drops hits without a usable URL and repeats, keeping first-seen
// order.
func dedupe(hits []model.SearchHit) []model.SearchHit {
	seen := make(map[string]bool, len(hits))
	out := make([]model.SearchHit, 0, len(hits))
	for _, h := range hits {
		u := strings.TrimSpace(h.URL)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		key := strings.TrimSuffix(u, "/")
		if seen[key] {
			continue
		}
		seen[key] = true
		h.URL = u
		out = append(out, h)
	}
	return out
}
