package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/folderserve/internal/api"
	"github.com/fruitsalade/folderserve/internal/config"
	"github.com/fruitsalade/folderserve/internal/content"
	"github.com/fruitsalade/folderserve/internal/index"
	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/metrics"
	"github.com/fruitsalade/folderserve/internal/retry"
	"github.com/fruitsalade/folderserve/internal/schedule"
)

const shutdownTimeout = 15 * time.Second

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the daily index jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Sync()
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		return serve(commandContext(cmd), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides LISTEN_ADDR)")
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("folderserve starting",
		zap.String("root", cfg.Root),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Bool("index", cfg.IndexEnabled))

	var ix *index.Index
	if cfg.IndexEnabled {
		var (
			closeStore func()
			err        error
		)
		ix, closeStore, err = startIndex(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		sched := schedule.New(schedule.Options{Retry: retry.DefaultConfig()})
		if err := addJobs(sched, cfg, ix); err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	srv, err := api.NewServer(api.Options{
		Root:             cfg.Root,
		Index:            ix,
		Negotiator:       content.NewNegotiator(cfg.MIMETypes),
		DefaultPageSize:  cfg.DefaultPageSize,
		ListingCacheSize: cfg.ListingCacheSize,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", srv.HealthHandler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logging.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("shutdown error", zap.Error(err))
		return err
	}
	logging.Info("server stopped")
	return nil
}

// startIndex loads the index and brings it up to date before serving:
// a full rebuild, or an incremental reconcile when full startup scans are
// disabled.
func startIndex(ctx context.Context, cfg *config.Config) (*index.Index, func(), error) {
	ix, closeStore, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.FullScanOnStartup {
		err = ix.FullRebuild(ctx)
	} else {
		err = ix.Reconcile(ctx)
	}
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("startup index scan: %w", err)
	}
	return ix, closeStore, nil
}

// addJobs registers the daily cleanup and update jobs. A job that finds
// another index mutation running is retried with backoff.
func addJobs(sched *schedule.Scheduler, cfg *config.Config, ix *index.Index) error {
	if cfg.CleanupEnabled {
		err := sched.Add(schedule.Job{
			Name: "cleanup",
			At:   schedule.MustParseAt(cfg.CleanupAt),
			Run: func(ctx context.Context) error {
				_, err := ix.CleanupExpired(ctx)
				return retryIfBusy(err)
			},
		})
		if err != nil {
			return err
		}
	}

	update := ix.Reconcile
	if cfg.UpdateFullScan {
		update = ix.FullRebuild
	}
	return sched.Add(schedule.Job{
		Name: "update",
		At:   schedule.MustParseAt(cfg.UpdateAt),
		Run: func(ctx context.Context) error {
			return retryIfBusy(update(ctx))
		},
	})
}

func retryIfBusy(err error) error {
	if errors.Is(err, index.ErrBusy) {
		return retry.Retryable(err)
	}
	return err
}
