package curate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsAI/internal/collect"
	"github.com/TobiSchelling/NewsAI/internal/fetch"
	"github.com/TobiSchelling/NewsAI/internal/llm"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	prompt   string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (llm.Completion, error) {
	m.prompt = prompt
	return llm.Completion{Text: m.response, Tokens: 42}, m.err
}

func (m *mockProvider) Name() string { return "mock" }

var entry = collect.Entry{
	URL:     "https://example.com/post",
	Title:   "Feed title",
	Content: "Feed text",
	Source:  "Example",
}

func TestCurate(t *testing.T) {
	p := &mockProvider{response: "Sure!\n```json\n" + `{
		"title": "Open model released",
		"content": "A new **open** model.",
		"rating": 8,
		"category": "models",
		"image_url": "https://cdn.example.com/cover.png"
	}` + "\n```"}

	res, err := New(p, 0, nil).Curate(context.Background(), entry, &fetch.Page{
		Text:     "Full page text",
		ImageURL: "https://example.com/og.png",
	})
	require.NoError(t, err)

	a := res.Article
	assert.Equal(t, "https://example.com/post", a.URL)
	assert.Equal(t, "Open model released", *a.Title)
	assert.Equal(t, "A new **open** model.", *a.Summary)
	assert.Equal(t, 8, *a.Rating)
	assert.Equal(t, "Models", *a.Category)
	assert.Equal(t, "https://cdn.example.com/cover.png", *a.ImageURL)
	assert.Nil(t, a.DateFeed)
	assert.Equal(t, int64(42), res.Tokens)

	assert.Contains(t, p.prompt, "Full page text")
	assert.NotContains(t, p.prompt, "Feed text")
}

func TestCurateFallbacks(t *testing.T) {
	p := &mockProvider{response: `{"title": " ", "content": "Summary", "rating": "7/10", "category": "", "image_url": "none"}`}

	res, err := New(p, 0, nil).Curate(context.Background(), entry, &fetch.Page{ImageURL: "https://example.com/og.png"})
	require.NoError(t, err)

	a := res.Article
	assert.Equal(t, "Feed title", *a.Title)
	assert.Equal(t, 7, *a.Rating)
	assert.Nil(t, a.Category)
	assert.Equal(t, "https://example.com/og.png", *a.ImageURL)
	assert.Contains(t, p.prompt, "Feed text")
}

func TestCurateWithoutPage(t *testing.T) {
	p := &mockProvider{response: `{"content": "Summary", "image_url": ""}`}

	res, err := New(p, 0, nil).Curate(context.Background(), entry, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Article.ImageURL)
	assert.Nil(t, res.Article.Rating)
	assert.Contains(t, p.prompt, "Feed text")
}

func TestCurateErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(&mockProvider{response: "I cannot help with that."}, 0, nil).Curate(ctx, entry, nil)
	assert.ErrorIs(t, err, llm.ErrNoJSON)

	res, err := New(&mockProvider{response: `{"title": "x", "content": "  "}`}, 0, nil).Curate(ctx, entry, nil)
	assert.ErrorIs(t, err, ErrEmptySummary)
	assert.Equal(t, int64(42), res.Tokens)

	boom := errors.New("boom")
	_, err = New(&mockProvider{err: boom}, 0, nil).Curate(ctx, entry, nil)
	assert.ErrorIs(t, err, boom)
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		in   any
		want *int
	}{
		{float64(7), intp(7)},
		{float64(7.6), intp(8)},
		{float64(-3), intp(0)},
		{float64(42), intp(10)},
		{"6", intp(6)},
		{" 9 / 10 ", intp(9)},
		{"high", nil},
		{nil, nil},
		{true, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRating(tt.in), "%v", tt.in)
	}
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab", clip("abc", 2))
	assert.Equal(t, "éé", clip(strings.Repeat("é", 4), 2))
}

func intp(v int) *int { return &v }
