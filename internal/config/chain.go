package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"whaleScope/internal/classify"
)

// Chain kinds select the fetcher implementation.
const (
	KindEVM     = "evm"
	KindBitcoin = "bitcoin"
	KindSolana  = "solana"
	KindToken   = "token"
)

const defaultInterval = 5 * time.Minute

// ChainConfig declares one scanned chain or token contract.
type ChainConfig struct {
	ID          string        `mapstructure:"id"`
	Kind        string        `mapstructure:"kind"`
	RPC         string        `mapstructure:"rpc"`
	APIKey      string        `mapstructure:"api-key"`
	Symbol      string        `mapstructure:"symbol"`
	Vocabulary  string        `mapstructure:"vocabulary"`
	MinToken    string        `mapstructure:"min-token"`
	MinUSD      string        `mapstructure:"min-usd"`
	CoinGeckoID string        `mapstructure:"coingecko-id"`
	Window      uint64        `mapstructure:"window"`
	Interval    time.Duration `mapstructure:"interval"`
	Retention   int           `mapstructure:"retention"`
	Labels      string        `mapstructure:"labels"`
	RateLimit   float64       `mapstructure:"rate-limit"`
	Contract    string        `mapstructure:"contract"`
	// ChunkSize and PageSize tune explorer queries of token chains.
	ChunkSize uint64 `mapstructure:"chunk-size"`
	PageSize  int    `mapstructure:"page-size"`
}

type chainDefaults struct {
	kind       string
	symbol     string
	vocabulary classify.Vocabulary
	minToken   string
	window     uint64
	retention  int
}

// Well-known chain ids carry the settings the dashboard used for them.
var knownChains = map[string]chainDefaults{
	"eth": {kind: KindEVM, symbol: "ETH", vocabulary: classify.BuySell, minToken: "100", window: 5, retention: 2000},
	"bnb": {kind: KindEVM, symbol: "BNB", vocabulary: classify.BuySell, minToken: "250", window: 100, retention: 1000},
	"btc": {kind: KindBitcoin, symbol: "BTC", vocabulary: classify.BuySell, minToken: "5", window: 5, retention: 100},
	"sol": {kind: KindSolana, symbol: "SOL", vocabulary: classify.DepositWithdraw, minToken: "1000", window: 750, retention: 2000},
}

var kindDefaults = map[string]chainDefaults{
	KindEVM:     {vocabulary: classify.BuySell, window: 100, retention: 2000},
	KindBitcoin: {vocabulary: classify.BuySell, window: 5, retention: 100},
	KindSolana:  {vocabulary: classify.DepositWithdraw, window: 750, retention: 2000},
	KindToken:   {vocabulary: classify.BuySell, window: 10000, retention: 2000},
}

func (c *ChainConfig) applyDefaults() {
	c.ID = strings.ToLower(strings.TrimSpace(c.ID))
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))

	known, isKnown := knownChains[c.ID]
	if c.Kind == "" && isKnown {
		c.Kind = known.kind
	}
	d, ok := kindDefaults[c.Kind]
	if !ok {
		return
	}
	if isKnown && known.kind == c.Kind {
		d = known
	}
	if c.Symbol == "" {
		c.Symbol = d.symbol
		if c.Symbol == "" {
			c.Symbol = strings.ToUpper(c.ID)
		}
	}
	if c.Vocabulary == "" {
		c.Vocabulary = string(d.vocabulary)
	}
	if c.MinToken == "" && c.MinUSD == "" {
		c.MinToken = d.minToken
	}
	if c.Window == 0 {
		c.Window = d.window
	}
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.Retention <= 0 {
		c.Retention = d.retention
	}
}

func (c *ChainConfig) validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch c.Kind {
	case KindEVM:
		if c.RPC == "" {
			return fmt.Errorf("rpc is required for %s chains", c.Kind)
		}
	case KindBitcoin, KindSolana:
	case KindToken:
		if c.Contract == "" {
			return fmt.Errorf("contract is required for token chains")
		}
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	if _, err := classify.ParseVocabulary(c.Vocabulary); err != nil {
		return err
	}
	if _, err := c.MinTokenValue(); err != nil {
		return err
	}
	if _, err := c.MinUSDValue(); err != nil {
		return err
	}
	switch {
	case c.MinToken != "" && c.MinUSD != "":
		return fmt.Errorf("min-token and min-usd are mutually exclusive")
	case c.MinToken == "" && c.MinUSD == "":
		return fmt.Errorf("one of min-token or min-usd is required")
	case c.MinUSD != "" && c.CoinGeckoID == "":
		return fmt.Errorf("min-usd requires coingecko-id")
	}
	if c.Window == 0 {
		return fmt.Errorf("window must be greater than zero")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative")
	}
	if c.PageSize < 0 {
		return fmt.Errorf("page-size must not be negative")
	}
	return nil
}

// UsesUSD reports whether the threshold is priced in USD.
func (c ChainConfig) UsesUSD() bool {
	return c.MinUSD != ""
}

// MinTokenValue parses min-token. Empty yields zero.
func (c ChainConfig) MinTokenValue() (decimal.Decimal, error) {
	return parseAmount("min-token", c.MinToken)
}

// MinUSDValue parses min-usd. Empty yields zero.
func (c ChainConfig) MinUSDValue() (decimal.Decimal, error) {
	return parseAmount("min-usd", c.MinUSD)
}

// LabelFamily names the built-in label set matching the chain's address format.
func (c ChainConfig) LabelFamily() string {
	switch c.Kind {
	case KindBitcoin:
		return "bitcoin"
	case KindSolana:
		return "solana"
	default:
		return "ethereum"
	}
}

func parseAmount(key, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
