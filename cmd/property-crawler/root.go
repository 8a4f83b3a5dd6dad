package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/property-crawler/internal/config"
	"github.com/maltedev/property-crawler/internal/database"
	"github.com/maltedev/property-crawler/internal/events"
	"github.com/maltedev/property-crawler/pkg/logger"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property-crawler",
		Short: "Crawl property listing sites into a listings store",
		Long: `property-crawler walks a property listings site from a seed URL,
extracts name, price and address from every listing block and stores each
listing in Postgres, SQLite or a JSON file.

With the Postgres store every written listing also produces a LISTING_CREATED
outbox event that the relay publishes to Redis streams or Kafka.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRelayCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return false
	}
	return verbose
}

func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if getVerboseFlag(cmd) {
		level = "debug"
	}
	log, err := logger.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newPublisher builds the broker side of the outbox relay.
func newPublisher(ctx context.Context, cfg *config.Config) (database.Publisher, error) {
	switch cfg.Relay.Publisher {
	case config.PublisherKafka:
		return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case config.PublisherRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return events.NewRedisStreamPublisher(client, cfg.Redis.StreamMaxLen), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidPublisher, cfg.Relay.Publisher)
	}
}

func newRelay(outbox database.OutboxRepo, publisher database.Publisher, cfg *config.Config, log *slog.Logger) *database.Relay {
	return database.NewRelay(outbox, publisher, log, database.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
	})
}
