// Package collect reads the configured feeds into ingestion entries.
package collect

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/TobiSchelling/NewsAI/internal/config"
)

// Collector reads entries from every configured feed.
type Collector struct {
	parser *FeedParser
	log    *slog.Logger
}

// NewCollector creates a Collector for cfg's feeds.
func NewCollector(cfg *config.Config, client *http.Client, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	feeds := make([]Feed, len(cfg.Sources.Feeds))
	for i, f := range cfg.Sources.Feeds {
		feeds[i] = Feed{URL: f.URL, Name: f.Name}
	}
	return &Collector{
		parser: NewFeedParser(feeds, cfg.Ingest.PerFeedLimit, client, log),
		log:    log,
	}
}

// Collect returns the entries of every feed, in feed order.
func (c *Collector) Collect(ctx context.Context) []Entry {
	entries := c.parser.ParseAll(ctx)
	c.log.InfoContext(ctx, "Collection complete", "entries", len(entries))
	return entries
}
