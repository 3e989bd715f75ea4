package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/pkg/jina"
	"github.com/sells-group/atlas-research/pkg/perplexity"
)

// Result is what one provider returned for one query. Text is free-form
// answer text when the provider produces one.
type Result struct {
	Hits []model.SearchHit
	Text string
}

// Provider runs a query against one search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) (*Result, error)
}

// snippetLimit bounds the page text kept per hit.
const snippetLimit = 600

// JinaProvider searches with Jina's keyword search.
type JinaProvider struct {
	client jina.Client
}

// NewJinaProvider creates a JinaProvider.
func NewJinaProvider(client jina.Client) *JinaProvider {
	return &JinaProvider{client: client}
}

func (p *JinaProvider) Name() string { return "jina" }

// Search runs q.Keyword.
func (p *JinaProvider) Search(ctx context.Context, q Query) (*Result, error) {
	resp, err := p.client.Search(ctx, q.Keyword)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	for _, r := range resp.Data {
		snippet := r.Description
		if snippet == "" {
			snippet = truncate(r.Content, snippetLimit)
		}
		res.Hits = append(res.Hits, model.SearchHit{Title: r.Title, URL: r.URL, Snippet: snippet})
	}
	return res, nil
}

const perplexitySystemPrompt = `You are a corporate research assistant. Answer the question about the company using current web sources. Be factual and concise. If the information is not available, say "not found".`

// PerplexityProvider asks Perplexity's online model and returns its cited
// sources as hits and its answer as text.
type PerplexityProvider struct {
	client perplexity.Client
}

// NewPerplexityProvider creates a PerplexityProvider.
func NewPerplexityProvider(client perplexity.Client) *PerplexityProvider {
	return &PerplexityProvider{client: client}
}

func (p *PerplexityProvider) Name() string { return "perplexity" }

// Search asks q.Question.
func (p *PerplexityProvider) Search(ctx context.Context, q Query) (*Result, error) {
	temp := 0.0
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySystemPrompt},
			{Role: "user", Content: q.Question},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.New("perplexity: empty response")
	}

	res := &Result{Text: strings.TrimSpace(resp.Content())}
	for _, r := range resp.SearchResults {
		res.Hits = append(res.Hits, model.SearchHit{Title: r.Title, URL: r.URL})
	}
	if len(res.Hits) == 0 {
		for _, u := range resp.Citations {
			res.Hits = append(res.Hits, model.SearchHit{URL: u})
		}
	}
	return res, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
