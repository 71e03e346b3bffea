package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whaleScope/internal/labels"
	"whaleScope/internal/model"
)

func testIndex() *labels.Index {
	return labels.NewIndex(
		labels.Groups{"Binance": {"exch1", "0xAbC"}, "Kraken": {"exch2"}},
		labels.Groups{"Wintermute": {"otc1"}},
	)
}

func TestClassify(t *testing.T) {
	idx := testIndex()
	tests := []struct {
		name   string
		from   string
		to     string
		vocab  Vocabulary
		want   model.TxType
		reason SuppressReason
	}{
		{name: "exchange to exchange", from: "exch1", to: "exch2", vocab: BuySell, reason: Internal},
		{name: "same exchange wallet", from: "exch1", to: "EXCH1", vocab: BuySell, reason: Internal},
		{name: "self transfer", from: "user1", to: "USER1", vocab: BuySell, reason: SelfTransfer},
		{name: "user to exchange", from: "user1", to: "exch1", vocab: BuySell, want: model.TxSell},
		{name: "user to exchange deposit", from: "user1", to: "exch1", vocab: DepositWithdraw, want: model.TxDeposit},
		{name: "exchange to user", from: "exch1", to: "user1", vocab: BuySell, want: model.TxBuy},
		{name: "exchange to user withdraw", from: "exch1", to: "user1", vocab: DepositWithdraw, want: model.TxWithdraw},
		{name: "mixed case exchange", from: "user1", to: "0xabc", vocab: BuySell, want: model.TxSell},
		{name: "wallet to wallet", from: "user1", to: "user2", vocab: BuySell, want: model.TxNone},
		{name: "organization is not an exchange", from: "otc1", to: "user2", vocab: BuySell, want: model.TxNone},
		{name: "organization to exchange", from: "otc1", to: "exch2", vocab: DepositWithdraw, want: model.TxDeposit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.from, tt.to, idx, tt.vocab)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.reason != NotSuppressed, got.Suppressed())
			if tt.reason == NotSuppressed {
				assert.Equal(t, tt.want, got.Type)
			}
		})
	}
}

func TestClassifyWithoutLabels(t *testing.T) {
	assert.Equal(t, model.TxNone, Classify("a", "b", nil, BuySell).Type)
	assert.True(t, Classify("a", "A", nil, BuySell).Suppressed())
}

func TestParseVocabulary(t *testing.T) {
	v, err := ParseVocabulary("")
	require.NoError(t, err)
	assert.Equal(t, BuySell, v)

	v, err = ParseVocabulary("Deposit-Withdraw")
	require.NoError(t, err)
	assert.Equal(t, DepositWithdraw, v)

	_, err = ParseVocabulary("long-short")
	require.Error(t, err)
}

func TestMeetsThresholdIsInclusive(t *testing.T) {
	minimum := decimal.NewFromInt(100)
	assert.True(t, MeetsThreshold(decimal.NewFromInt(100), minimum))
	assert.True(t, MeetsThreshold(decimal.RequireFromString("100.000001"), minimum))
	assert.False(t, MeetsThreshold(decimal.RequireFromString("99.999999"), minimum))
}

type stubPrices struct {
	price decimal.Decimal
	err   error
}

func (s stubPrices) USD(context.Context, string) (decimal.Decimal, error) {
	return s.price, s.err
}

func TestUSDThreshold(t *testing.T) {
	th := USDThreshold{MinUSD: decimal.NewFromInt(1_000_000), AssetID: "ethereum", Prices: stubPrices{price: decimal.NewFromInt(2500)}}
	got, err := th.Minimum(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(got), got.String())

	th.Prices = stubPrices{err: errors.New("down")}
	_, err = th.Minimum(context.Background())
	require.Error(t, err)

	th.Prices = stubPrices{price: decimal.Zero}
	_, err = th.Minimum(context.Background())
	require.Error(t, err)
}

func TestFixedThreshold(t *testing.T) {
	got, err := FixedThreshold{Min: decimal.NewFromInt(250)}.Minimum(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(250).Equal(got))
}
