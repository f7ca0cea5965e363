// Package curate turns a fetched page into a rated, categorised article
// using an LLM.
package curate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/TobiSchelling/NewsAI/internal/collect"
	"github.com/TobiSchelling/NewsAI/internal/database"
	"github.com/TobiSchelling/NewsAI/internal/fetch"
	"github.com/TobiSchelling/NewsAI/internal/llm"
)

const (
	maxPromptChars   = 6000
	defaultMaxTokens = 1024
	maxRating        = 10
)

const curatePrompt = `You are the editor of a news site about artificial intelligence.

Rewrite the article below for our readers and return ONLY this JSON object:
{
    "title": "a clear, factual headline",
    "content": "a summary of 3 to 6 short paragraphs in Markdown, no headline",
    "rating": 0-10,
    "category": "one or two words, e.g. Research, Models, Tools, Industry, Policy, Robotics",
    "image_url": "the main image URL of the article, or an empty string"
}

rating: 10 = major news every practitioner should read, 6 = worth reading, 0 = spam or off-topic.

Source: %s
URL: %s
Feed title: %s
Preview image: %s

Article text:
%s`

// ErrEmptySummary is returned when the model produced no summary.
var ErrEmptySummary = errors.New("model returned an empty summary")

// Result is a curated article and the tokens spent on it.
type Result struct {
	Article database.NewArticle
	Tokens  int64
}

// Curator rewrites articles with an LLM.
type Curator struct {
	provider  llm.Provider
	maxTokens int
	log       *slog.Logger
}

// New creates a Curator.
func New(provider llm.Provider, maxTokens int, log *slog.Logger) *Curator {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if log == nil {
		log = slog.Default()
	}
	return &Curator{provider: provider, maxTokens: maxTokens, log: log}
}

type reply struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Rating   any    `json:"rating"`
	Category string `json:"category"`
	ImageURL string `json:"image_url"`
}

// Curate asks the model to summarise, rate and categorise entry. page may
// be nil when the article page could not be fetched; the feed text is used
// instead. The returned article has no Date_Feed; callers set it.
func (c *Curator) Curate(ctx context.Context, entry collect.Entry, page *fetch.Page) (*Result, error) {
	text := entry.Content
	image := ""
	if page != nil {
		if page.Text != "" {
			text = page.Text
		}
		image = page.ImageURL
	}
	if strings.TrimSpace(text) == "" {
		text = entry.Title
	}

	prompt := fmt.Sprintf(curatePrompt, entry.Source, entry.URL, entry.Title, image, clip(text, maxPromptChars))
	completion, err := c.provider.Generate(ctx, prompt, c.maxTokens)
	if err != nil {
		return nil, err
	}

	var r reply
	if err := llm.ParseJSONResponse(completion.Text, &r); err != nil {
		c.log.DebugContext(ctx, "Unparseable curation reply", "url", entry.URL, "reply", clip(completion.Text, 500))
		return &Result{Tokens: completion.Tokens}, err
	}

	summary := strings.TrimSpace(r.Content)
	if summary == "" {
		return &Result{Tokens: completion.Tokens}, ErrEmptySummary
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = entry.Title
	}
	imageURL := strings.TrimSpace(r.ImageURL)
	if !isHTTPURL(imageURL) {
		imageURL = image
	}

	return &Result{
		Article: database.NewArticle{
			URL:      entry.URL,
			ImageURL: optional(imageURL),
			Title:    &title,
			Summary:  &summary,
			Rating:   parseRating(r.Rating),
			Category: optional(normaliseCategory(r.Category)),
		},
		Tokens: completion.Tokens,
	}, nil
}

// parseRating accepts numbers, numeric strings and "n/10" strings and
// clamps the result to 0..10.
func parseRating(v any) *int {
	var f float64
	switch r := v.(type) {
	case float64:
		f = r
	case string:
		s := strings.TrimSpace(r)
		if i := strings.IndexByte(s, '/'); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	n := int(math.Round(math.Max(0, math.Min(maxRating, f))))
	return &n
}

func normaliseCategory(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
