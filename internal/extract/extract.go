// Package extract turns gathered search results and page content into a
// normalized ExtractionRecord with a single LLM call, and re-asks for
// individual fields that came back empty.
package extract

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/normalize"
	"github.com/sells-group/atlas-research/internal/resilience"
	"github.com/sells-group/atlas-research/pkg/anthropic"
)

// Evidence is everything gathered for one target before extraction.
type Evidence struct {
	Target model.Target
	// SERP holds search text per query field.
	SERP map[string]string
	// Fields is the query order used to render SERP.
	Fields []string
	Pages  []model.CrawledPage
}

// Config tunes the extraction calls.
type Config struct {
	Model          string
	MaxTokens      int64
	FieldMaxTokens int64
	SERPLimit      int
	PageLimit      int
	Timeout        time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5-20250929"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.FieldMaxTokens <= 0 {
		c.FieldMaxTokens = 1024
	}
	if c.SERPLimit <= 0 {
		c.SERPLimit = 15000
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 25000
	}
	return c
}

// Result is one extraction call's output.
type Result struct {
	Record model.ExtractionRecord
	Usage  anthropic.TokenUsage
}

// Extractor calls the LLM at temperature zero and normalizes its answers.
type Extractor struct {
	client anthropic.Client
	guard  *resilience.Guard
	norm   *normalize.Normalizer
	cfg    Config
}

// New creates an Extractor. guard may be nil.
func New(client anthropic.Client, guard *resilience.Guard, norm *normalize.Normalizer, cfg Config) *Extractor {
	if norm == nil {
		norm = normalize.New(nil)
	}
	return &Extractor{client: client, guard: guard, norm: norm, cfg: cfg.withDefaults()}
}

// Extract produces a normalized record from ev. When the answer cannot be
// parsed the returned Result carries only usage.
func (e *Extractor) Extract(ctx context.Context, ev Evidence) (*Result, error) {
	if len(ev.SERP) == 0 && len(ev.Pages) == 0 {
		return nil, eris.New("extract: no evidence")
	}

	resp, err := e.call(ctx, "extract", anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.CachedSystem(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(ev, e.cfg.SERPLimit, e.cfg.PageLimit)},
		},
	})
	if err != nil {
		return nil, err
	}

	rec, err := parseRecord(ev.Target, resp.Text())
	if err != nil {
		return &Result{Usage: resp.Usage}, err
	}
	for _, p := range ev.Pages {
		rec.Sources = append(rec.Sources, p.URL)
	}
	rec.ExtractedAt = time.Now().UTC()

	zap.L().Debug("extract: record parsed",
		zap.String("target", ev.Target.Label()),
		zap.Int("fields", len(rec.Fields)),
		zap.Int("people", len(rec.People)),
	)
	return &Result{Record: e.norm.Record(rec), Usage: resp.Usage}, nil
}

// FieldValue is a single-field answer. Exactly one of Value or List is set
// when Found is true.
type FieldValue struct {
	Field model.FieldName
	Value string
	List  []string
	Found bool
	Usage anthropic.TokenUsage
}

// ExtractField asks for one field using narrower evidence.
func (e *Extractor) ExtractField(ctx context.Context, target model.Target, field model.FieldName, serp string, pages []model.CrawledPage) (*FieldValue, error) {
	resp, err := e.call(ctx, "extract_field", anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.FieldMaxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildFieldPrompt(target, field, serp, pages, 5000, 8000)},
		},
	})
	if err != nil {
		return nil, err
	}

	fv := &FieldValue{Field: field, Usage: resp.Usage}
	value, list := parseFieldValue(field, resp.Text())
	if model.IsListField(field) {
		fv.List = e.norm.List(list)
		fv.Found = len(fv.List) > 0
		return fv, nil
	}
	if v, ok := e.norm.Value(value); ok && Sufficient(v) {
		fv.Value = v
		fv.Found = true
	}
	return fv, nil
}

func (e *Extractor) call(ctx context.Context, op string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	temp := 0.0
	req.Temperature = &temp

	fn := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := e.client.CreateMessage(ctx, req)
		if err == nil && resp == nil {
			return nil, eris.New("anthropic: empty response")
		}
		return resp, err
	}
	if e.guard != nil {
		return resilience.Call(ctx, e.guard, "anthropic", op, e.cfg.Timeout, fn)
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	resp, err := fn(ctx)
	if err != nil {
		return nil, model.NewProviderFailure("anthropic", op, err)
	}
	return resp, nil
}

// Sufficient reports whether a scalar value is long enough to count as
// present for retry purposes.
func Sufficient(v string) bool {
	return len([]rune(strings.TrimSpace(v))) >= 3
}

// Missing returns the critical then important fields that rec lacks, in
// priority order.
func Missing(rec model.ExtractionRecord) []model.FieldName {
	var out []model.FieldName
	check := func(fields []model.FieldName) {
		for _, f := range fields {
			if model.IsListField(f) {
				if len(rec.List(f)) == 0 {
					out = append(out, f)
				}
				continue
			}
			if !Sufficient(rec.Value(f)) {
				out = append(out, f)
			}
		}
	}
	check(model.CriticalFields())
	check(model.ImportantFields())
	return out
}
