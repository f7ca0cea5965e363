package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsAI/internal/listing"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		schema, dirty, err := db.SchemaVersion()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}

		bold := color.New(color.Bold).SprintFunc()
		ok := color.New(color.FgGreen).SprintFunc()
		warn := color.New(color.FgYellow).SprintFunc()

		fmt.Println(bold("Database:"))
		fmt.Printf("  Path: %s\n", db.Path())
		if dirty {
			fmt.Printf("  Schema: %s\n", warn(fmt.Sprintf("v%d (dirty)", schema)))
		} else {
			fmt.Printf("  Schema: %s\n", ok(fmt.Sprintf("v%d", schema)))
		}

		fmt.Println(bold("\nArticles:"))
		fmt.Printf("  Total: %d\n", stats.Articles)
		fmt.Printf("  Categories: %d\n", stats.Categories)
		if stats.LastIngestedAt != nil {
			fmt.Printf("  Last ingested: %s\n", *stats.LastIngestedAt)
		} else {
			fmt.Printf("  Last ingested: %s\n", warn("never (run 'newsai ingest')"))
		}

		fmt.Println(bold("\nReaders:"))
		fmt.Printf("  Users: %d\n", stats.Users)
		fmt.Printf("  Read marks: %d\n", stats.ReadMarks)

		fmt.Println(bold("\nIngestion:"))
		fmt.Printf("  Feeds: %d\n", len(cfg.Sources.Feeds))
		fmt.Printf("  Provider: %s\n", cfg.Curation.Provider)
		if cfg.Ingest.Schedule != "" {
			fmt.Printf("  Schedule: %s\n", ok(cfg.Ingest.Schedule))
		} else {
			fmt.Printf("  Schedule: %s\n", warn("manual"))
		}
		return nil
	},
}

var articlesFlags struct {
	page     int
	limit    int
	rating   int
	category string
	query    string
	sortBy   string
	order    string
}

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List stored articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		f := articlesFlags
		req := listing.Request{
			Variant:     listing.Recent,
			Page:        f.page,
			Limit:       f.limit,
			SortBy:      f.sortBy,
			Order:       f.order,
			IncludeRead: true,
			MinRating:   f.rating,
		}
		switch {
		case f.category != "":
			req.Variant = listing.Category
			req.Category = f.category
		case f.query != "":
			req.Variant = listing.Search
			req.Query = f.query
		}

		page, err := listing.NewService(db, logger).List(ctx, nil, req)
		if err != nil {
			return err
		}

		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithConfig(tablewriter.Config{
				Row: tw.CellConfig{
					Formatting: tw.CellFormatting{AutoWrap: tw.WrapTruncate},
					Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				},
				Header: tw.CellConfig{
					Formatting: tw.CellFormatting{AutoFormat: tw.On},
					Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				},
			}),
			tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
		)
		table.Header("ID", "Rating", "Category", "Title", "Feed date")
		for _, a := range page.Articles {
			rating := "-"
			if a.Rating != nil {
				rating = strconv.Itoa(*a.Rating)
			}
			if err := table.Append(
				strconv.FormatInt(a.ID, 10),
				rating,
				deref(a.Category),
				clip(deref(a.Title), 70),
				deref(a.DateFeed),
			); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}

		fmt.Printf("\nPage %d of %d (%d articles)\n", page.CurrentPage, page.TotalPages, page.TotalCount)
		return nil
	},
}

func init() {
	fl := articlesCmd.Flags()
	fl.IntVar(&articlesFlags.page, "page", listing.DefaultPage, "Page number")
	fl.IntVar(&articlesFlags.limit, "limit", listing.DefaultLimit, "Articles per page")
	fl.IntVar(&articlesFlags.rating, "rating", listing.DefaultMinRating, "Minimum rating for the recent listing")
	fl.StringVar(&articlesFlags.category, "category", "", "Only this category")
	fl.StringVarP(&articlesFlags.query, "query", "q", "", "Search titles and summaries")
	fl.StringVar(&articlesFlags.sortBy, "sort", "", "Sort column: created_at, Date_Feed, rating or title")
	fl.StringVar(&articlesFlags.order, "order", "", "asc or desc")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
