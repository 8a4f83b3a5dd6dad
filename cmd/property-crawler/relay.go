package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/property-crawler/internal/config"
	"github.com/maltedev/property-crawler/internal/database"
)

// NewRelayCmd creates the relay command.
func NewRelayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish pending outbox events until interrupted",
		Long: `Relay polls the outbox_event table of the Postgres store and publishes
pending events to the broker selected by RELAY_PUBLISHER (redis or kafka).
Failed events are retried with exponential backoff.`,
		Args: cobra.NoArgs,
		RunE: runRelayCmd,
	}
}

func runRelayCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Crawler.Store = config.StorePostgres
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	relay := newRelay(database.NewOutboxRepository(db), publisher, cfg, log)
	if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
