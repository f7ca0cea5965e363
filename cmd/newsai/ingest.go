package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsAI/internal/collect"
	"github.com/TobiSchelling/NewsAI/internal/curate"
	"github.com/TobiSchelling/NewsAI/internal/database"
	"github.com/TobiSchelling/NewsAI/internal/fetch"
	"github.com/TobiSchelling/NewsAI/internal/ingest"
	"github.com/TobiSchelling/NewsAI/internal/llm"
)

var dryRun bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch feeds, curate new articles with the LLM and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := runIngest(ctx, db, dryRun)
		if res != nil {
			fmt.Println("\nIngestion summary:")
			fmt.Printf("  Entries processed: %d\n", res.Processed)
			if dryRun {
				fmt.Printf("  Would add: %d\n", res.Pending)
			} else {
				fmt.Printf("  Added: %d\n", res.Added)
			}
			fmt.Printf("  Already stored: %d\n", res.Duplicates)
			fmt.Printf("  Too old: %d\n", res.TooOld)
			fmt.Printf("  Errors: %d\n", res.Errors)
			if res.Tokens > 0 {
				fmt.Printf("  LLM tokens: %d\n", res.Tokens)
			}
			fmt.Printf("  Took: %s\n", res.Duration.Round(time.Second))
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be ingested without calling the LLM")
}

// runIngest builds the pipeline from cfg and runs it once.
func runIngest(ctx context.Context, db *database.DB, dry bool) (*ingest.Result, error) {
	client := &http.Client{Timeout: 15 * time.Second}

	var curator ingest.Curator
	if dry {
		curator = noCurator{}
	} else {
		provider, err := llm.CreateProvider(ctx, cfg.Curation, logger)
		if err != nil {
			return nil, err
		}
		curator = curate.New(llm.Limit(provider, cfg.Curation.RequestsPerMinute), cfg.Curation.MaxTokens, logger)
	}

	p := ingest.New(
		db,
		collect.NewCollector(cfg, client, logger),
		fetch.New(client, collect.UserAgent, logger),
		curator,
		ingest.Options{
			Workers: cfg.Ingest.Workers,
			MaxAge:  cfg.Curation.MaxAge,
			DryRun:  dry,
		},
		logger,
	)
	return p.Run(ctx)
}

// noCurator stands in for the LLM on dry runs, which never curate.
type noCurator struct{}

func (noCurator) Curate(context.Context, collect.Entry, *fetch.Page) (*curate.Result, error) {
	return nil, fmt.Errorf("curation is disabled on dry runs")
}
