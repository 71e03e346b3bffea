package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whaleScope/internal/config"
	"whaleScope/internal/feed"
	"whaleScope/internal/storage"
	"whaleScope/internal/storage/postgres"
)

// app holds the storage stack shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	pg          *postgres.Store
	remote      storage.Remote
	queue       *storage.RetryQueue
	checkpoints *storage.CheckpointStore
	events      *storage.EventStore
	reader      *feed.Reader
}

func loadApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.RemoteCheckInterval, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pg = pg
		a.remote = pg
		// connects and creates the schema when reachable
		pg.Available(ctx)
	} else {
		logger.Info("no pg-dsn configured, running local-only")
	}

	layout := storage.Layout{Dir: cfg.DataDir}
	a.queue = storage.NewRetryQueue(cfg.RetryInterval, logger)
	a.checkpoints = storage.NewCheckpointStore(layout, a.remote, logger)
	a.events = storage.NewEventStore(layout, a.remote, a.queue, logger)
	a.reader = feed.NewReader(a.events, a.checkpoints, storage.NewSeenStore(layout, logger))
	return a, nil
}

func (a *app) close() {
	if a.queue != nil && a.queue.Len() > 0 {
		a.logger.Warn("exiting with undelivered remote writes", zap.Int("pending", a.queue.Len()))
	}
	if a.pg != nil {
		a.pg.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) chain(id string) (config.ChainConfig, error) {
	ch, ok := a.cfg.Chain(id)
	if !ok {
		return config.ChainConfig{}, fmt.Errorf("unknown chain %q (configured: %v)", id, a.cfg.ChainIDs())
	}
	return ch, nil
}

// remoteAvailable is the readiness check; local-only mode is always ready.
func (a *app) remoteAvailable(ctx context.Context) bool {
	if a.remote == nil {
		return true
	}
	return a.remote.Available(ctx)
}

// every calls fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
