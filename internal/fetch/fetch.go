// Package fetch downloads article pages and extracts their readable text.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 5 << 20
	minTextLength  = 100
)

// Page is what the fetcher extracts from an article page.
type Page struct {
	URL      string
	Title    string
	Text     string
	ImageURL string
}

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetcher fetches article pages.
type Fetcher struct {
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

// New creates a Fetcher. A nil client gets a client with a 15s timeout.
func New(client *http.Client, userAgent string, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{client: client, userAgent: userAgent, log: log}
}

// Fetch downloads articleURL and extracts its readable text and preview
// image. Text shorter than a short paragraph is dropped.
func (f *Fetcher) Fetch(ctx context.Context, articleURL string) (*Page, error) {
	parsed, err := url.Parse(articleURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", articleURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	page := &Page{URL: articleURL}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	page.Title = metaContent(doc, "og:title")
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	page.ImageURL = resolve(parsed, metaContent(doc, "og:image", "twitter:image"))

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		f.log.DebugContext(ctx, "Readability extraction failed", "url", articleURL, "error", err)
		return page, nil
	}
	if text := strings.TrimSpace(article.TextContent); len(text) > minTextLength {
		page.Text = text
	}
	return page, nil
}

// metaContent returns the first non-empty content of a meta tag matching
// one of names by property or name attribute.
func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		sel := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, name, name)
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// resolve makes ref absolute against base. Non-http results are dropped.
func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}
