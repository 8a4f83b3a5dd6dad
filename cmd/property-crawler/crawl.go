package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/property-crawler/internal/api"
	"github.com/maltedev/property-crawler/internal/config"
	"github.com/maltedev/property-crawler/internal/crawler"
	"github.com/maltedev/property-crawler/internal/database"
	"github.com/maltedev/property-crawler/internal/extractor"
	"github.com/maltedev/property-crawler/internal/fetcher"
	"github.com/maltedev/property-crawler/internal/ratelimit"
	"github.com/maltedev/property-crawler/internal/report"
	"github.com/maltedev/property-crawler/internal/storage"
	"github.com/maltedev/property-crawler/internal/writer"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url]",
		Short: "Crawl a listings site starting at seed-url",
		Long: `Crawl fetches the seed page, stores every listing found on it and follows
either the "next page" link (pagination) or every same-domain link (links)
until the page or depth limit is reached. Each URL is fetched at most once.

Without a seed-url the seed of the site profile is used.

Examples:
  # Crawl the first five result pages into the default SQLite database
  property-crawler crawl --page-limit 5

  # Follow all links two hops deep with a custom site profile
  property-crawler crawl --strategy links --max-depth 2 --site mysite.yaml https://www.example.com/

  # Store in Postgres, publish outbox events and write a report
  property-crawler crawl --store postgres --relay --report run.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("strategy", "s", "", "Crawl strategy: pagination or links")
	cmd.Flags().IntP("max-depth", "d", 0, "Maximum hop depth for the links strategy")
	cmd.Flags().IntP("page-limit", "p", 0, "Maximum number of pages for the pagination strategy")
	cmd.Flags().String("site", "", "Site profile YAML file (default: built-in profile)")
	cmd.Flags().String("store", "", "Listing store: postgres, sqlite or file")
	cmd.Flags().Duration("delay", 0, "Delay before each request after the seed")
	cmd.Flags().DurationP("timeout", "t", 0, "Timeout for each page fetch")
	cmd.Flags().String("status-addr", "", "Serve run status on this address (e.g. :8080)")
	cmd.Flags().String("report", "", "Write a Markdown run report to this path")
	cmd.Flags().Bool("relay", false, "Publish outbox events while crawling (postgres store only)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	profile, err := loadProfile(cfg.Crawler.SiteProfile)
	if err != nil {
		return err
	}

	seed := profile.Seed
	if len(args) > 0 {
		seed = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd, cfg, profile, seed, log)
}

// buildConfig loads env configuration and applies explicitly set flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Crawler.Strategy, _ = flags.GetString("strategy")
	}
	if flags.Changed("max-depth") {
		cfg.Crawler.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("page-limit") {
		cfg.Crawler.PageLimit, _ = flags.GetInt("page-limit")
	}
	if flags.Changed("site") {
		cfg.Crawler.SiteProfile, _ = flags.GetString("site")
	}
	if flags.Changed("store") {
		cfg.Crawler.Store, _ = flags.GetString("store")
	}
	if flags.Changed("delay") {
		cfg.Crawler.Delay, _ = flags.GetDuration("delay")
	}
	if flags.Changed("timeout") {
		cfg.Fetcher.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("status-addr") {
		cfg.Server.Addr, _ = flags.GetString("status-addr")
	}
	if flags.Changed("relay") {
		cfg.Relay.Enabled, _ = flags.GetBool("relay")
	}

	return cfg, nil
}

func loadProfile(path string) (*config.SiteProfile, error) {
	if path == "" {
		return config.DefaultSiteProfile(), nil
	}
	return config.LoadSiteProfile(path)
}

// listingStore is what every store kind offers the crawl command.
type listingStore interface {
	writer.Store
	CountListings(ctx context.Context) (int64, error)
}

// openedStore bundles a store with the optional Postgres handle behind it.
type openedStore struct {
	listings listingStore
	db       *database.DB
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*openedStore, error) {
	switch cfg.Crawler.Store {
	case config.StorePostgres:
		db, err := connectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &openedStore{
			listings: database.NewListingRepository(db, cfg.Relay.TargetStream, log),
			db:       db,
			close:    db.Close,
		}, nil

	case config.StoreSQLite:
		s, err := database.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info("using sqlite store", "path", s.Path())
		return &openedStore{listings: s, close: func() { _ = s.Close() }}, nil

	case config.StoreFile:
		s, err := storage.NewFileStore(cfg.File.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		log.Info("using file store", "path", cfg.File.Path)
		return &openedStore{listings: s, close: func() { _ = s.Close() }}, nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStore, cfg.Crawler.Store)
	}
}

func runCrawl(
	ctx context.Context,
	cmd *cobra.Command,
	cfg *config.Config,
	profile *config.SiteProfile,
	seed string,
	log *slog.Logger,
) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	strategy, err := crawler.NewStrategy(cfg.Crawler.Strategy, crawler.StrategyOptions{
		MaxDepth:      cfg.Crawler.MaxDepth,
		PageLimit:     cfg.Crawler.PageLimit,
		StopWhenEmpty: profile.StopWhenEmpty,
		Pagination:    profile.PaginationOptions(),
		ExcludedPaths: profile.ExcludedPaths,
	})
	if err != nil {
		return err
	}

	ctrl := crawler.NewController(
		fetcher.New(fetcher.Options{
			Timeout:     cfg.Fetcher.Timeout,
			DialTimeout: cfg.Fetcher.DialTimeout,
			MaxBodySize: cfg.Fetcher.MaxBodySize,
			UserAgent:   cfg.Fetcher.UserAgent,
		}, log),
		extractor.New(profile.Listing.Block, profile.Listing.Fields),
		writer.New(store.listings, writer.Options{
			Defaults:   profile.Defaults,
			References: profile.References,
		}, log),
		strategy,
		ratelimit.New(cfg.Crawler.Delay, cfg.Crawler.Jitter),
		log,
	)

	var relay *database.Relay
	var outbox api.OutboxStats
	if store.db != nil {
		repo := database.NewOutboxRepository(store.db)
		outbox = repo
		if cfg.Relay.Enabled {
			publisher, err := newPublisher(ctx, cfg)
			if err != nil {
				return err
			}
			defer publisher.Close()
			relay = newRelay(repo, publisher, cfg, log)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	if cfg.Server.Addr != "" {
		srv := api.NewServer(cfg.Server.Addr, api.NewHandlers(ctrl, outbox, store.listings, log), log)
		g.Go(func() error {
			return srv.ListenAndServe(auxCtx)
		})
	}

	if relay != nil {
		g.Go(func() error {
			n, err := relay.RunAndDrain(auxCtx, context.WithoutCancel(ctx))
			if err != nil {
				log.Error("failed to drain outbox", "error", err)
				return nil
			}
			log.Info("outbox drained", "published", n)
			return nil
		})
	}

	var stats crawler.Stats
	var runErr error
	g.Go(func() error {
		defer stopAux()
		stats, runErr = ctrl.Run(gctx, seed)
		if runErr != nil && !isCancellation(runErr) {
			return runErr
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if run, ok := ctrl.CurrentRun(); ok {
			if err := writeReport(path, run.Summary(), runErr); err != nil {
				return err
			}
			log.Info("report written", "path", path)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pages visited: %d\n", stats.PagesVisited)
	fmt.Fprintf(out, "Listings written: %d\n", stats.ListingsWritten)

	if runErr != nil {
		log.Warn("crawl interrupted", "error", runErr)
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func writeReport(path string, summary crawler.Summary, runErr error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := report.WriteMarkdown(f, summary, runErr); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
