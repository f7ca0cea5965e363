package collect

import (
	"context"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// UserAgent is sent with every feed and page request.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) NewsAIBot/1.0"

const defaultPerFeed = 20

// Entry is one feed item ready for ingestion.
type Entry struct {
	URL   string
	Title string
	// Published is the item's published or updated time; zero when the
	// feed gives neither.
	Published time.Time
	Content   string
	Source    string
}

// Within reports whether the entry is dated at or after cutoff. Undated
// entries are never within the window.
func (e Entry) Within(cutoff time.Time) bool {
	return !e.Published.IsZero() && !e.Published.Before(cutoff)
}

// Feed is a single feed to read.
type Feed struct {
	URL  string
	Name string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	feeds   []Feed
	perFeed int
	parser  *gofeed.Parser
	strip   *bluemonday.Policy
	log     *slog.Logger
}

// NewFeedParser creates a FeedParser that keeps at most perFeed entries
// per feed. client may be nil.
func NewFeedParser(feeds []Feed, perFeed int, client *http.Client, log *slog.Logger) *FeedParser {
	if perFeed <= 0 {
		perFeed = defaultPerFeed
	}
	if log == nil {
		log = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.UserAgent = UserAgent
	if client != nil {
		parser.Client = client
	}
	strip := bluemonday.StrictPolicy()
	strip.AddSpaceWhenStrippingTag(true)
	return &FeedParser{
		feeds:   feeds,
		perFeed: perFeed,
		parser:  parser,
		strip:   strip,
		log:     log,
	}
}

// ParseAll parses every feed. A feed that fails is logged and skipped.
func (fp *FeedParser) ParseAll(ctx context.Context) []Entry {
	var all []Entry
	for _, f := range fp.feeds {
		if ctx.Err() != nil {
			break
		}
		name := f.Name
		if name == "" {
			name = extractSourceName(f.URL)
		}

		entries, err := fp.parseFeed(ctx, f.URL, name)
		if err != nil {
			fp.log.WarnContext(ctx, "Failed to parse feed", "url", f.URL, "error", err)
			continue
		}
		all = append(all, entries...)
		fp.log.InfoContext(ctx, "Parsed feed", "source", name, "entries", len(entries))
	}
	return all
}

func (fp *FeedParser) parseFeed(ctx context.Context, feedURL, source string) ([]Entry, error) {
	feed, err := fp.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, item := range feed.Items {
		if len(entries) >= fp.perFeed {
			break
		}
		if entry, ok := fp.parseItem(item, source); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (fp *FeedParser) parseItem(item *gofeed.Item, source string) (Entry, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		return Entry{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Entry{}, false
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	return Entry{
		URL:       link,
		Title:     title,
		Published: published,
		Content:   fp.plainText(content),
		Source:    source,
	}, true
}

// plainText strips markup and collapses whitespace.
func (fp *FeedParser) plainText(markup string) string {
	if markup == "" {
		return ""
	}
	text := fp.strip.Sanitize(markup)
	return strings.Join(strings.Fields(html.UnescapeString(text)), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
