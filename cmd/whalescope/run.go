package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whaleScope/internal/api"
	"whaleScope/internal/emit"
	"whaleScope/internal/labels"
	"whaleScope/internal/metrics"
	"whaleScope/internal/price"
	"whaleScope/internal/scanner"
)

func runScanners(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger
	cfg := a.cfg

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	a.queue.OnDepthChange(m.SetQueueDepth)
	m.SetRemoteUp(a.remote != nil && a.remote.Available(ctx))

	var sink emit.Sink = emit.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := emit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	prices := price.NewCoinGecko(price.Config{BaseURL: cfg.CoinGeckoURL}, logger)
	policy := retryPolicy(cfg)

	runners := make([]*scanner.Runner, 0, len(cfg.Chains))
	sources := make([]*labels.Source, 0, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		fetcher, closeFetcher, err := buildFetcher(ctx, ch, policy, logger)
		if err != nil {
			return err
		}
		defer closeFetcher()

		source, err := labels.NewSource(ch.Labels, labels.Builtin(ch.LabelFamily()), logger.With(zap.String("chain", ch.ID)))
		if err != nil {
			return fmt.Errorf("chain %s labels: %w", ch.ID, err)
		}
		sources = append(sources, source)

		runCfg, err := runConfig(ch, prices)
		if err != nil {
			return err
		}
		runner, err := scanner.NewRunner(runCfg, scanner.Deps{
			Fetcher:     fetcher,
			Labels:      source,
			Checkpoints: a.checkpoints,
			Events:      a.events,
			Sink:        sink,
			Metrics:     m,
		}, logger)
		if err != nil {
			return err
		}
		runners = append(runners, runner)
	}

	server := api.NewServer(api.Options{
		Chains: cfg.ChainIDs(),
		Reader: a.reader,
		Status: func() []scanner.Status {
			out := make([]scanner.Status, 0, len(runners))
			for _, r := range runners {
				out = append(out, r.Status())
			}
			return out
		},
		Ready:    a.remoteAvailable,
		Gatherer: registry,
		Logger:   logger,
	})

	logger.Info("whalescope start",
		zap.Strings("chains", cfg.ChainIDs()),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("remote", a.remote != nil),
		zap.Bool("kafka", len(cfg.KafkaBrokers) > 0),
		zap.String("listen", cfg.Listen),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	if a.remote != nil {
		g.Go(func() error { return a.queue.Run(gctx, a.remote, cfg.RetryInterval/4) })
		g.Go(func() error {
			return every(gctx, cfg.RemoteCheckInterval, func() {
				m.SetRemoteUp(a.remote.Available(gctx))
			})
		})
	}
	g.Go(func() error {
		return every(gctx, cfg.LabelsRefresh, func() {
			for _, s := range sources {
				if err := s.Reload(); err != nil {
					logger.Warn("labels reload failed, keeping previous snapshot", zap.Error(err))
				}
			}
		})
	})
	if cfg.Listen != "" {
		g.Go(func() error { return server.ListenAndServe(gctx, cfg.Listen) })
	}

	return g.Wait()
}
