package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atlas-research/internal/extract"
	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/search"
)

// searchPhase runs one query per configured field and collects candidate
// URLs in surfaced order plus the search text per field.
func (e *Engine) searchPhase(r *run) (extract.Evidence, error) {
	ev := extract.Evidence{
		Target: r.target,
		SERP:   make(map[string]string),
		Fields: e.cfg.QueryFields,
	}
	queries := search.Build(r.target, e.cfg.QueryFields)
	r.emit(model.CategorySearch, "Generated %d search queries", len(queries))

	seen := make(map[string]bool)
	var candidates []string
	for _, q := range queries {
		ans, err := e.search(r, q)
		if err != nil {
			return ev, err
		}
		if !ans.Found() {
			r.emit(model.CategorySearch, "[%s] no results: %s", q.Field, q.Keyword)
			continue
		}

		r.emit(model.CategorySearch, "[%s] %s answered %q with %d results", q.Field, ans.Provider, queryText(ans), len(ans.Hits))
		ev.SERP[q.Field] = serpText(ans)
		for _, h := range ans.Hits {
			if !seen[h.URL] {
				seen[h.URL] = true
				candidates = append(candidates, h.URL)
			}
		}
	}

	if len(candidates) == 0 {
		return ev, eris.New("no candidate pages found")
	}
	r.emit(model.CategorySearch, "Found %d unique candidate pages", len(candidates))
	ev.Pages = make([]model.CrawledPage, 0, e.cfg.MinPages)
	r.candidates = candidates
	return ev, nil
}

// search runs q and records usage and provider failures on r.
func (e *Engine) search(r *run, q search.Query) (search.Answer, error) {
	ans, err := e.deps.Searcher.Search(r.ctx, q)
	for _, name := range ans.Tried {
		r.usage.SearchQueries++
		if name == "perplexity" {
			r.usage.PerplexityQueries++
		}
	}
	for _, f := range ans.Failures {
		r.emit(model.CategoryError, "[%s] search degraded: %v", q.Field, f)
	}
	if err != nil {
		return ans, eris.Wrap(err, "search")
	}
	return ans, nil
}

// browsePhase reads candidates in order until MinPages succeed or the
// candidate budget is spent. Individual failures degrade.
func (e *Engine) browsePhase(r *run, ev *extract.Evidence) error {
	attempted := 0
	for _, u := range r.candidates {
		if len(ev.Pages) >= e.cfg.MinPages || attempted >= e.cfg.MaxCandidates {
			break
		}
		if reason := e.deps.Fetcher.SkipReason(u); reason != "" {
			r.emit(model.CategoryBrowse, "Skipped %s (%s)", u, reason)
			continue
		}

		attempted++
		page, err := e.read(r, u)
		if r.ctx.Err() != nil {
			return eris.Wrap(r.ctx.Err(), "browse")
		}
		if err != nil {
			r.emit(model.CategoryError, "Could not read %s: %v", u, err)
			continue
		}
		ev.Pages = append(ev.Pages, *page)
		r.read[u] = true
	}

	if len(ev.Pages) == 0 {
		r.emit(model.CategoryBrowse, "No pages could be read; extracting from search results only")
		return nil
	}
	r.emit(model.CategoryBrowse, "Read %d pages", len(ev.Pages))
	return nil
}

// read fetches one page and records usage.
func (e *Engine) read(r *run, u string) (*model.CrawledPage, error) {
	res, err := e.deps.Fetcher.Scrape(r.ctx, u)
	if err != nil {
		return nil, err
	}
	r.usage.PagesRead++
	r.usage.ReaderTokens += res.Tokens
	if res.Source == "firecrawl" {
		r.usage.FirecrawlPages++
	}
	r.emit(model.CategoryBrowse, "Read %s via %s (%d chars)", res.Page.URL, res.Source, len(res.Page.Markdown))
	return &res.Page, nil
}

// extractPhase runs the bulk extraction, then retries missing critical and
// important fields.
func (e *Engine) extractPhase(r *run, ev extract.Evidence) (model.ExtractionRecord, error) {
	r.emit(model.CategoryExtract, "Extracting profile from %d pages and %d search summaries", len(ev.Pages), len(ev.SERP))

	res, err := e.deps.Extractor.Extract(r.ctx, ev)
	if res != nil {
		r.addTokens(res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.CacheCreationInputTokens, res.Usage.CacheReadInputTokens)
	}
	if err != nil {
		return model.ExtractionRecord{}, eris.Wrap(err, "extract")
	}
	rec := res.Record
	r.emit(model.CategoryExtract, "Extracted %d fields, %d lists and %d people", len(rec.Fields), len(rec.Lists), len(rec.People))

	missing := extract.Missing(rec)
	if len(missing) == 0 || e.cfg.MaxFieldRetries == 0 {
		return rec, nil
	}
	r.emit(model.CategoryExtract, "Retrying %d missing fields: %s", len(missing), joinFields(missing))
	for _, f := range missing {
		if err := e.retryField(r, &rec, f); err != nil {
			return rec, err
		}
	}
	if still := extract.Missing(rec); len(still) > 0 {
		r.emit(model.CategoryExtract, "Still missing after retries: %s", joinFields(still))
	}
	return rec, nil
}

// retryField makes up to MaxFieldRetries attempts at one field. Only
// cancellation is returned as an error.
func (e *Engine) retryField(r *run, rec *model.ExtractionRecord, field model.FieldName) error {
	for attempt := 1; attempt <= e.cfg.MaxFieldRetries; attempt++ {
		q := search.Retry(r.target, string(field), attempt)
		ans, err := e.search(r, q)
		if err != nil {
			return err
		}
		if !ans.Found() {
			continue
		}

		var pages []model.CrawledPage
		for _, h := range ans.Hits {
			if len(pages) >= e.cfg.RetryPages {
				break
			}
			if r.read[h.URL] || e.deps.Fetcher.SkipReason(h.URL) != "" {
				continue
			}
			page, err := e.read(r, h.URL)
			if r.ctx.Err() != nil {
				return eris.Wrap(r.ctx.Err(), "retry")
			}
			if err != nil {
				continue
			}
			r.read[h.URL] = true
			pages = append(pages, *page)
		}

		fv, err := e.deps.Extractor.ExtractField(r.ctx, r.target, field, serpText(ans), pages)
		if r.ctx.Err() != nil {
			return eris.Wrap(r.ctx.Err(), "retry")
		}
		if err != nil {
			r.emit(model.CategoryError, "[%s] retry %d extraction degraded: %v", field, attempt, err)
			continue
		}
		r.addTokens(fv.Usage.InputTokens, fv.Usage.OutputTokens, fv.Usage.CacheCreationInputTokens, fv.Usage.CacheReadInputTokens)
		if !fv.Found {
			continue
		}

		if model.IsListField(field) {
			rec.Lists[field] = fv.List
		} else {
			rec.Fields[field] = fv.Value
		}
		r.emit(model.CategoryExtract, "[%s] found on retry %d", field, attempt)
		return nil
	}
	return nil
}

// finalizePhase fills derived fields, looks up the logo and prices the run.
func (e *Engine) finalizePhase(r *run, rec model.ExtractionRecord) model.ExtractionRecord {
	rec.Target = r.target
	if _, ok := rec.Get(model.FieldCompanyName); !ok && r.target.Name != "" {
		rec.Fields[model.FieldCompanyName] = r.target.Name
	}

	if e.deps.Logos != nil && r.target.IsDomain() {
		ctx, cancel := context.WithTimeout(r.ctx, e.cfg.LogoTimeout)
		logo, err := e.deps.Logos.Find(ctx, r.target.Domain)
		cancel()
		if err != nil {
			r.emit(model.CategoryStatus, "Logo not found: %v", err)
		} else {
			rec.Fields[model.FieldLogoURL] = logo
			r.emit(model.CategoryStatus, "Logo: %s", logo)
		}
	}

	if e.deps.Cost != nil {
		r.usage.CostUSD = e.deps.Cost.Estimate(e.cfg.Model, r.usage)
	}
	r.log.Info("research: target complete",
		zap.Int("fields", len(rec.Fields)),
		zap.Int("pages", r.usage.PagesRead),
		zap.Int("queries", r.usage.SearchQueries),
		zap.Float64("cost_usd", r.usage.CostUSD),
	)
	return rec
}

func (r *run) addTokens(in, out, cacheWrite, cacheRead int64) {
	r.usage.InputTokens += in
	r.usage.OutputTokens += out
	r.usage.CacheWriteTokens += cacheWrite
	r.usage.CacheReadTokens += cacheRead
}

// serpText renders an answer as the search text handed to extraction.
func serpText(ans search.Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s RESULTS ---\n", strings.ToUpper(ans.Provider))
	if ans.Text != "" {
		b.WriteString(ans.Text)
		b.WriteString("\n")
	}
	for _, h := range ans.Hits {
		fmt.Fprintf(&b, "%s (%s)\n", h.Title, h.URL)
		if h.Snippet != "" {
			b.WriteString(h.Snippet)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func queryText(ans search.Answer) string {
	if ans.Provider == "perplexity" {
		return ans.Query.Question
	}
	return ans.Query.Keyword
}

func joinFields(fields []model.FieldName) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
