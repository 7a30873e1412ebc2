package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"marginalia/api/internal/analysis"
	"marginalia/api/internal/config"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
)

func newReindexCmd() *cobra.Command {
	var (
		batchSize   int
		concurrency int
		wait        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Push every stored annotation into the search index",
		Long: `Walk the annotations table in id order and write each annotation,
with its analyzed URI fields, into the Meilisearch annotation index.

Example usage:
  marginalia reindex --batch 1000 --concurrency 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if strings.TrimSpace(cfg.MeiliURL) == "" {
				return errors.New("MEILI_URL is not set")
			}
			log, err := commandLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			db, dialect, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			dataStore := store.NewSQLStore(db, dialect, log)

			meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
			defer meiliClient.Close()
			if !waitHealthy(ctx, meiliClient, wait) {
				return fmt.Errorf("meilisearch at %s not healthy after %s", cfg.MeiliURL, wait)
			}

			svc := search.NewService(meiliClient, analysis.New(cfg.URIDecodeDepth), log)
			started := time.Now()
			written, err := svc.ReindexAll(ctx, dataStore, search.ReindexOptions{
				BatchSize:   batchSize,
				Concurrency: concurrency,
			})
			if err != nil {
				return fmt.Errorf("reindex after %d annotations: %w", written, err)
			}
			log.Info("reindex finished", zap.Int("indexed", written), zap.Duration("took", time.Since(started)))
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d annotations\n", written)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch", 500, "annotations per index request")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "index requests in flight")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for Meilisearch to become healthy")
	return cmd
}

type healthChecker interface {
	Healthy() bool
}

func waitHealthy(ctx context.Context, index healthChecker, limit time.Duration) bool {
	deadline := time.Now().Add(limit)
	for !index.Healthy() {
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
	return true
}
