package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"floe/catalog"
	"floe/catalog/fscat"
	"floe/catalog/sqlcat"
	"floe/config"
	"floe/engine"
	"floe/floeerr"
	"floe/scan"
	"floe/storage"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening warehouse: %w", err)
	}
	cat, closeCat, err := openCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer closeCat()

	eng, err := engine.New(cfg.Warehouse.Path)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Close()

	cache := catalog.NewMetadataCache(store)
	for _, name := range cfg.Tables {
		if err := registerTable(ctx, cfg, cat, cache, store, eng, name); err != nil {
			if errors.Is(err, floeerr.ErrNoSuchTable) {
				logger.Warn("table not in catalog, skipping", "table", name)
				continue
			}
			return err
		}
		logger.Info("registered table", "table", name)
	}

	proxy, err := engine.NewProxy(eng, fmt.Sprintf(":%d", cfg.Proxy.Port), logger)
	if err != nil {
		return fmt.Errorf("starting proxy: %w", err)
	}
	logger.Info("serving", "addr", proxy.Addr())

	go func() {
		if err := proxy.Start(ctx); err != nil {
			logger.Error("proxy stopped", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutting down")
	case <-ctx.Done():
	}
	return nil
}

func registerTable(ctx context.Context, cfg *config.Config, cat catalog.Catalog, cache *catalog.MetadataCache, store storage.Storage, eng *engine.Engine, name string) error {
	loc, err := cat.CurrentLocation(ctx, name)
	if err != nil {
		return err
	}
	meta, err := cache.Load(ctx, loc)
	if err != nil {
		return err
	}
	tasks, err := scan.New(meta, store, scan.Parallelism(cfg.Scan.Parallelism)).PlanFiles(ctx)
	if err != nil {
		return err
	}
	return eng.RegisterTable(ctx, name, tasks)
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Warehouse.Backend {
	case "local":
		return storage.NewLocal(cfg.Warehouse.Path), nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Warehouse.Region))
		if err != nil {
			return nil, err
		}
		return storage.NewS3Storage(s3.NewFromConfig(awsCfg), cfg.Warehouse.Bucket, ""), nil
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown warehouse backend %q", cfg.Warehouse.Backend)
	}
}

func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, func(), error) {
	switch cfg.Catalog.Backend {
	case "memory":
		return catalog.NewMemory(), func() {}, nil
	case "file":
		cat, err := fscat.Open(cfg.Catalog.Dir)
		if err != nil {
			return nil, nil, err
		}
		return cat, func() {}, nil
	case "sql":
		cat, err := sqlcat.Open(ctx, cfg.Catalog.DSN)
		if err != nil {
			return nil, nil, err
		}
		return cat, cat.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}
