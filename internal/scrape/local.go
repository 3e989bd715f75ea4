package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; AtlasResearchBot/1.0)"
	maxBodyBytes = 512 * 1024
	minBodyBytes = 100
)

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropRe   = regexp.MustCompile(`(?is)<(script|style|noscript|svg)[^>]*>.*?</(script|style|noscript|svg)>`)
	blockRe  = regexp.MustCompile(`(?i)<(br|/p|/div|/li|/h[1-6]|/tr|/section)[^>]*>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`[ \t\r]+`)
	blankRe  = regexp.MustCompile(`\n\s*\n(\s*\n)+`)
	entities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// LocalScraper fetches HTML directly and converts it to plain text. It costs
// nothing, so it runs first; blocked pages fall through to hosted readers.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper. A nil client gets a 15s default.
func NewLocalScraper(client *http.Client) *LocalScraper {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &LocalScraper{client: client}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches targetURL, rejects blocked or empty pages and strips the
// markup. The raw HTML is kept on the page for logo discovery.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	body, resp, err := l.fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	if block := DetectBlock(resp, body); block != BlockNone {
		return nil, eris.Errorf("local_http: blocked (%s)", block)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(body) < minBodyBytes {
		return nil, eris.New("local_http: empty page")
	}

	html := string(body)
	return &Result{
		Page: model.CrawledPage{
			URL:        resp.Request.URL.String(),
			Title:      extractTitle(html),
			Markdown:   stripHTML(html),
			HTML:       html,
			StatusCode: resp.StatusCode,
		},
		Source: l.Name(),
	}, nil
}

func (l *LocalScraper) fetch(ctx context.Context, targetURL string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, eris.Wrap(err, "local_http: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, eris.Wrap(err, "local_http: read body")
	}
	return body, resp, nil
}

func extractTitle(html string) string {
	if m := titleRe.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(entities.Replace(m[1]))
	}
	return ""
}

// stripHTML drops scripts and styles, removes tags, decodes common entities
// and collapses whitespace.
func stripHTML(html string) string {
	html = dropRe.ReplaceAllString(html, "")
	html = blockRe.ReplaceAllString(html, "\n")
	html = tagRe.ReplaceAllString(html, " ")
	html = entities.Replace(html)
	html = spaceRe.ReplaceAllString(html, " ")

	lines := strings.Split(html, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	html = strings.Join(lines, "\n")
	html = blankRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
