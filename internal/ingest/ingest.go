// Package ingest runs the feed → page → LLM → articles pipeline.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/NewsAI/internal/collect"
	"github.com/TobiSchelling/NewsAI/internal/curate"
	"github.com/TobiSchelling/NewsAI/internal/database"
	"github.com/TobiSchelling/NewsAI/internal/fetch"
	"github.com/TobiSchelling/NewsAI/internal/metrics"
)

const (
	defaultWorkers = 4
	defaultMaxAge  = 24 * time.Hour
)

// Outcome labels, also used as metric label values.
const (
	OutcomeAdded     = "added"
	OutcomeDuplicate = "duplicate"
	OutcomeTooOld    = "too_old"
	OutcomeError     = "error"
	OutcomePending   = "pending"
)

// Store is the part of the database ingestion writes to.
type Store interface {
	ArticleExistsByURL(ctx context.Context, url string) (bool, error)
	InsertArticle(ctx context.Context, a database.NewArticle) (int64, error)
}

// Source yields feed entries.
type Source interface {
	Collect(ctx context.Context) []collect.Entry
}

// PageFetcher downloads article pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Curator rewrites an entry into an article.
type Curator interface {
	Curate(ctx context.Context, entry collect.Entry, page *fetch.Page) (*curate.Result, error)
}

// Options tune a pipeline run.
type Options struct {
	Workers int
	MaxAge  time.Duration
	// DryRun stops after deduplication and the age check.
	DryRun bool
}

// Result counts what happened to each entry. Processed is the number of
// entries collected; the other counters partition it. Entries skipped
// because the run was cancelled count as errors.
type Result struct {
	Processed  int
	Added      int
	Duplicates int
	TooOld     int
	Errors     int
	// Pending counts entries a dry run would have curated.
	Pending  int
	Tokens   int64
	Duration time.Duration
}

func (r *Result) count(outcome string) {
	switch outcome {
	case OutcomeAdded:
		r.Added++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeTooOld:
		r.TooOld++
	case OutcomePending:
		r.Pending++
	default:
		r.Errors++
	}
}

// Pipeline ingests new feed entries as articles.
type Pipeline struct {
	store   Store
	source  Source
	fetcher PageFetcher
	curator Curator
	opts    Options
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Pipeline.
func New(store Store, source Source, fetcher PageFetcher, curator Curator, opts Options, log *slog.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		store:   store,
		source:  source,
		fetcher: fetcher,
		curator: curator,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// Run collects every feed and processes the entries with up to
// Options.Workers in flight. Per-entry failures are counted, not returned;
// the error is non-nil only when ctx ends the run early.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.now()
	cutoff := start.Add(-p.opts.MaxAge)

	entries := p.source.Collect(ctx)
	res := &Result{Processed: len(entries)}

	var mu sync.Mutex
	record := func(outcome string, tokens int64) {
		mu.Lock()
		defer mu.Unlock()
		res.count(outcome)
		res.Tokens += tokens
	}

	seen := make(map[string]struct{}, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, entry := range entries {
		if _, dup := seen[entry.URL]; dup {
			record(OutcomeDuplicate, 0)
			continue
		}
		seen[entry.URL] = struct{}{}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				record(OutcomeError, 0)
				return err
			}
			outcome, tokens := p.process(gctx, entry, cutoff)
			record(outcome, tokens)
			return nil
		})
	}
	err := g.Wait()

	res.Duration = p.now().Sub(start)
	p.report(ctx, res)
	return res, err
}

func (p *Pipeline) process(ctx context.Context, entry collect.Entry, cutoff time.Time) (string, int64) {
	log := p.log.With("url", entry.URL)

	exists, err := p.store.ArticleExistsByURL(ctx, entry.URL)
	if err != nil {
		log.ErrorContext(ctx, "Checking for existing article failed", "error", err)
		return OutcomeError, 0
	}
	if exists {
		return OutcomeDuplicate, 0
	}
	if !entry.Within(cutoff) {
		return OutcomeTooOld, 0
	}
	if p.opts.DryRun {
		log.InfoContext(ctx, "Would ingest", "title", entry.Title, "source", entry.Source)
		return OutcomePending, 0
	}

	page, err := p.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		if entry.Content == "" {
			log.WarnContext(ctx, "Fetching article failed", "error", err)
			return OutcomeError, 0
		}
		log.InfoContext(ctx, "Fetching article failed, using feed text", "error", err)
	}

	curated, err := p.curator.Curate(ctx, entry, page)
	var tokens int64
	if curated != nil {
		tokens = curated.Tokens
	}
	if err != nil {
		log.WarnContext(ctx, "Curating article failed", "error", err)
		return OutcomeError, tokens
	}

	article := curated.Article
	dateFeed := entry.Published.UTC().Format(time.RFC3339)
	article.DateFeed = &dateFeed

	if _, err := p.store.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return OutcomeDuplicate, tokens
		}
		log.ErrorContext(ctx, "Inserting article failed", "error", err)
		return OutcomeError, tokens
	}
	log.InfoContext(ctx, "Article added", "title", deref(article.Title), "rating", derefInt(article.Rating))
	return OutcomeAdded, tokens
}

func (p *Pipeline) report(ctx context.Context, r *Result) {
	metrics.RecordIngest(OutcomeAdded, r.Added)
	metrics.RecordIngest(OutcomeDuplicate, r.Duplicates)
	metrics.RecordIngest(OutcomeTooOld, r.TooOld)
	metrics.RecordIngest(OutcomeError, r.Errors)
	metrics.RecordIngest(OutcomePending, r.Pending)
	metrics.RecordTokens(r.Tokens)
	metrics.IngestRunDuration.Observe(r.Duration.Seconds())

	p.log.InfoContext(ctx, "Ingestion complete",
		"processed", r.Processed,
		"added", r.Added,
		"duplicates", r.Duplicates,
		"tooOld", r.TooOld,
		"errors", r.Errors,
		"pending", r.Pending,
		"tokens", r.Tokens,
		"duration", r.Duration)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
