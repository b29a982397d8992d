package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/folderserve/internal/config"
	"github.com/fruitsalade/folderserve/internal/index"
	"github.com/fruitsalade/folderserve/internal/logging"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run one index job against the configured store and exit",
}

func init() {
	indexCmd.AddCommand(
		indexJobCommand("rebuild", "Rescan the whole tree and replace the index", func(ctx context.Context, ix *index.Index) error {
			return ix.FullRebuild(ctx)
		}),
		indexJobCommand("update", "Add new and modified paths, drop expired ones", func(ctx context.Context, ix *index.Index) error {
			return ix.Reconcile(ctx)
		}),
		indexJobCommand("cleanup", "Delete files older than the retention threshold", func(ctx context.Context, ix *index.Index) error {
			report, err := ix.CleanupExpired(ctx)
			fmt.Printf("expired %d, deleted %d, failed %d in %s\n",
				report.Expired, report.Deleted, report.Failed, report.Duration.Round(time.Millisecond))
			return err
		}),
		&cobra.Command{
			Use:   "reset",
			Short: "Delete the persisted index document",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				defer logging.Sync()

				ctx := commandContext(cmd)
				store, _, closeStore, err := openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer closeStore()
				if err := store.Delete(ctx); err != nil {
					return err
				}
				logging.Info("index document deleted", zap.String("store", store.Name()))
				return nil
			},
		},
	)
}

func indexJobCommand(name, short string, job func(context.Context, *index.Index) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logging.Sync()
			return runIndexJob(commandContext(cmd), cfg, name, job)
		},
	}
}

func runIndexJob(ctx context.Context, cfg *config.Config, name string, job func(context.Context, *index.Index) error) error {
	ix, closeStore, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	start := time.Now()
	if err := job(ctx, ix); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logging.Info("index job finished",
		zap.String("job", name),
		zap.Int("entries", ix.Len()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
