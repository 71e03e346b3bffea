package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"whaleScope/internal/chain"
	"whaleScope/internal/classify"
	"whaleScope/internal/config"
	"whaleScope/internal/model"
	"whaleScope/internal/retry"
	"whaleScope/internal/scanner"
)

func retryPolicy(cfg config.Config) retry.Policy {
	p := retry.Default()
	p.MaxAttempts = cfg.MaxRetries
	if cfg.RetryBackoff > 0 {
		p.BaseDelay = cfg.RetryBackoff
		p.MaxDelay = 10 * cfg.RetryBackoff
	}
	if cfg.RateLimitBackoff > 0 {
		p.RateLimitDelay = cfg.RateLimitBackoff
	}
	return p
}

// buildFetcher returns the fetcher of ch and its cleanup.
func buildFetcher(ctx context.Context, ch config.ChainConfig, policy retry.Policy, logger *zap.Logger) (chain.Fetcher, func(), error) {
	opts := chain.Options{
		RateLimit: ch.RateLimit,
		APIKey:    ch.APIKey,
		Retry:     policy,
		Logger:    logger,
	}
	noop := func() {}

	switch ch.Kind {
	case config.KindEVM:
		dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		f, err := chain.DialEVM(dialCtx, ch.ID, ch.RPC, opts)
		if err != nil {
			return nil, noop, err
		}
		return f, f.Close, nil
	case config.KindBitcoin:
		return chain.NewBitcoinFetcher(ch.ID, ch.RPC, opts), noop, nil
	case config.KindSolana:
		return chain.NewSolanaFetcher(ch.ID, ch.RPC, opts), noop, nil
	case config.KindToken:
		f, err := chain.NewTokenFetcher(ch.ID, chain.TokenConfig{
			BaseURL:   ch.RPC,
			Contract:  ch.Contract,
			ChunkSize: ch.ChunkSize,
			PageSize:  ch.PageSize,
		}, opts)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil
	default:
		return nil, noop, fmt.Errorf("chain %s: unknown kind %q", ch.ID, ch.Kind)
	}
}

func buildThreshold(ch config.ChainConfig, prices classify.PriceSource) (classify.Threshold, error) {
	if ch.UsesUSD() {
		minUSD, err := ch.MinUSDValue()
		if err != nil {
			return nil, err
		}
		return classify.USDThreshold{MinUSD: minUSD, AssetID: ch.CoinGeckoID, Prices: prices}, nil
	}
	minimum, err := ch.MinTokenValue()
	if err != nil {
		return nil, err
	}
	return classify.FixedThreshold{Min: minimum}, nil
}

func runConfig(ch config.ChainConfig, prices classify.PriceSource) (scanner.RunConfig, error) {
	vocab, err := classify.ParseVocabulary(ch.Vocabulary)
	if err != nil {
		return scanner.RunConfig{}, err
	}
	threshold, err := buildThreshold(ch, prices)
	if err != nil {
		return scanner.RunConfig{}, fmt.Errorf("chain %s threshold: %w", ch.ID, err)
	}
	unit := model.UnitNative
	if ch.Kind == config.KindToken {
		unit = model.UnitToken
	}
	return scanner.RunConfig{
		ChainID:    ch.ID,
		Vocabulary: vocab,
		Threshold:  threshold,
		Window:     ch.Window,
		Interval:   ch.Interval,
		Retention:  ch.Retention,
		Unit:       unit,
		Symbol:     ch.Symbol,
	}, nil
}
