package main

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/job-matcher/internal/app"
	"github.com/jonathan/job-matcher/internal/db"
	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load job postings into the listing store",
	Long: `Fetches postings from JSON files and HTTP feeds, normalizes them and upserts
them into the configured listing store (PostgreSQL or SQLite).

Sources are given as name=location. When the name is omitted, a file source is
named after its base name and a feed after its host.`,
	RunE: runIngest,
}

var (
	ingestFiles    []string
	ingestFeeds    []string
	ingestKeywords []string
	ingestLocation string
	ingestLimit    int
	ingestTimeout  time.Duration
)

func init() {
	ingestCmd.Flags().StringArrayVar(&ingestFiles, "file", nil, "JSON postings file, optionally as name=path (repeatable)")
	ingestCmd.Flags().StringArrayVar(&ingestFeeds, "feed", nil, "JSON feed endpoint, optionally as name=url (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestKeywords, "keywords", nil, "Keywords passed to feeds")
	ingestCmd.Flags().StringVar(&ingestLocation, "location", "", "Location passed to feeds")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 100, "Maximum postings per source")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 30*time.Second, "HTTP timeout per feed request")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	sources, err := ingestSources(ingestFiles, ingestFeeds, ingestTimeout)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("at least one --file or --feed is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	var database *db.DB
	if cfg.Listings.Backend == "postgres" {
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		database, err = db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	store, writer, err := app.OpenListings(ctx, cfg, database)
	if err != nil {
		return err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	report, err := listings.Ingest(ctx, sources, listings.SourceQuery{
		Keywords: ingestKeywords,
		Location: ingestLocation,
		Limit:    ingestLimit,
	}, writer, logger)

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d stored=%d dropped=%d\n", report.Fetched, report.Stored, report.Dropped)
	if len(report.Failed) > 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "failed sources: %s\n", strings.Join(report.Failed, ", "))
	}
	return err
}

// ingestSources builds the sources named on the command line.
func ingestSources(files, feeds []string, timeout time.Duration) ([]listings.Source, error) {
	var sources []listings.Source
	for _, spec := range files {
		name, path := splitSource(spec)
		if path == "" {
			return nil, fmt.Errorf("invalid --file %q", spec)
		}
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		sources = append(sources, listings.NewFileSource(name, path))
	}

	limiter := listings.NewHostLimiter(1, 2)
	for _, spec := range feeds {
		name, endpoint := splitSource(spec)
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("invalid --feed %q: an http(s) URL is required", spec)
		}
		if name == "" {
			name = u.Hostname()
		}
		sources = append(sources, listings.NewFeedSource(name, endpoint, listings.FeedOptions{
			Timeout:   timeout,
			UserAgent: "jobmatch-ingest/1.0",
			Limiter:   limiter,
		}))
	}
	return sources, nil
}

// splitSource splits name=location. A location containing "://" before any "=" is
// taken whole.
func splitSource(spec string) (name, location string) {
	eq := strings.Index(spec, "=")
	if eq < 0 || (strings.Contains(spec, "://") && strings.Index(spec, "://") < eq) {
		return "", strings.TrimSpace(spec)
	}
	return strings.TrimSpace(spec[:eq]), strings.TrimSpace(spec[eq+1:])
}
