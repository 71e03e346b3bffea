package main

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whaleScope/internal/chain"
	"whaleScope/internal/classify"
	"whaleScope/internal/config"
	"whaleScope/internal/model"
)

type fixedPrice decimal.Decimal

func (p fixedPrice) USD(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

func TestRunConfigToken(t *testing.T) {
	ch := config.ChainConfig{
		ID: "link", Kind: config.KindToken, Symbol: "LINK", Vocabulary: "buy-sell",
		MinToken: "20000", Window: 10000, Interval: time.Minute, Retention: 2000,
	}
	rc, err := runConfig(ch, nil)
	require.NoError(t, err)
	assert.Equal(t, model.UnitToken, rc.Unit)
	assert.Equal(t, classify.BuySell, rc.Vocabulary)

	minimum, err := rc.Threshold.Minimum(context.Background())
	require.NoError(t, err)
	assert.True(t, minimum.Equal(decimal.NewFromInt(20000)))
}

func TestRunConfigUSDThreshold(t *testing.T) {
	ch := config.ChainConfig{
		ID: "sol", Kind: config.KindSolana, Vocabulary: "deposit-withdraw",
		MinUSD: "150000", CoinGeckoID: "solana", Window: 750, Retention: 2000,
	}
	rc, err := runConfig(ch, fixedPrice(decimal.NewFromInt(150)))
	require.NoError(t, err)
	assert.Equal(t, model.UnitNative, rc.Unit)
	assert.Equal(t, classify.DepositWithdraw, rc.Vocabulary)

	minimum, err := rc.Threshold.Minimum(context.Background())
	require.NoError(t, err)
	assert.True(t, minimum.Equal(decimal.NewFromInt(1000)))
}

func TestBuildFetcherKinds(t *testing.T) {
	ctx := context.Background()
	policy := retryPolicy(config.Config{MaxRetries: 2, RetryBackoff: time.Second, RateLimitBackoff: 4 * time.Second})
	assert.Equal(t, 2, policy.MaxAttempts)
	assert.Equal(t, 10*time.Second, policy.MaxDelay)
	assert.Equal(t, 4*time.Second, policy.RateLimitDelay)

	f, closeFn, err := buildFetcher(ctx, config.ChainConfig{ID: "btc", Kind: config.KindBitcoin}, policy, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &chain.BitcoinFetcher{}, f)

	f, _, err = buildFetcher(ctx, config.ChainConfig{ID: "sol", Kind: config.KindSolana}, policy, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &chain.SolanaFetcher{}, f)

	_, _, err = buildFetcher(ctx, config.ChainConfig{ID: "link", Kind: config.KindToken}, policy, zap.NewNop())
	assert.Error(t, err, "token fetcher needs a contract")

	f, _, err = buildFetcher(ctx, config.ChainConfig{
		ID: "link", Kind: config.KindToken, Contract: "0x514910771af9ca656af840dff83e8264ecf986ca", ChunkSize: 50,
	}, policy, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &chain.TokenFetcher{}, f)

	_, _, err = buildFetcher(ctx, config.ChainConfig{ID: "x", Kind: "dogecoin"}, policy, zap.NewNop())
	assert.Error(t, err)
}
