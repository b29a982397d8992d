package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fruitsalade/folderserve/internal/config"
	"github.com/fruitsalade/folderserve/internal/index"
	"github.com/fruitsalade/folderserve/internal/index/pgstore"
	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/storage/local"
	s3storage "github.com/fruitsalade/folderserve/internal/storage/s3"
)

// loadConfig reads file and environment settings, applies flags, validates,
// and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if rootFlag != "" {
		cfg.Root = rootFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogOutput,
	}); err != nil {
		return nil, fmt.Errorf("logging init: %w", err)
	}
	return cfg, nil
}

// openStore returns the configured index document store and a function
// releasing its resources. For the file backend the second value is the
// absolute document path, which the walk must skip.
func openStore(ctx context.Context, cfg *config.Config) (index.Store, string, func(), error) {
	switch cfg.IndexBackend {
	case "s3":
		backend, err := s3storage.NewBackend(ctx, s3storage.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, "", nil, fmt.Errorf("s3 index store: %w", err)
		}
		return index.NewBackendStore(backend, cfg.IndexPath), "", func() { backend.Close() }, nil

	case "postgres":
		store, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.Root)
		if err != nil {
			return nil, "", nil, fmt.Errorf("postgres index store: %w", err)
		}
		return store, "", func() { store.Close() }, nil

	default:
		path, err := filepath.Abs(cfg.IndexPath)
		if err != nil {
			return nil, "", nil, fmt.Errorf("index path: %w", err)
		}
		backend, err := local.New(local.Config{RootPath: filepath.Dir(path), CreateDirs: true})
		if err != nil {
			return nil, "", nil, fmt.Errorf("file index store: %w", err)
		}
		return index.NewBackendStore(backend, filepath.Base(path)), path, func() { backend.Close() }, nil
	}
}

// openIndex creates the index and loads the persisted document.
func openIndex(ctx context.Context, cfg *config.Config) (*index.Index, func(), error) {
	store, docPath, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := index.Options{Retention: cfg.Retention.Duration}
	if docPath != "" {
		opts.Exclude = []string{docPath}
	}
	ix, err := index.New(cfg.Root, store, opts)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	if err := ix.Load(ctx); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("load index: %w", err)
	}

	logging.Info("index loaded",
		zap.String("store", store.Name()),
		zap.Int("entries", ix.Len()),
		zap.Duration("retention", ix.Retention()))
	return ix, closeStore, nil
}
