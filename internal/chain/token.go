package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"whaleScope/internal/model"
)

const (
	// DefaultEtherscanURL is the Etherscan API root.
	DefaultEtherscanURL = "https://api.etherscan.io/api"

	defaultTokenChunk = 1000
	defaultTokenPage  = 1000
	maxTokenPages     = 10
)

// errPageOverflow means a query returned maxTokenPages full pages.
var errPageOverflow = errors.New("page limit reached")

// TokenFetcher lists ERC-20 transfers of one contract through an
// Etherscan-compatible tokentx endpoint, chunking the block range.
type TokenFetcher struct {
	chainID  string
	contract string
	apiKey   string
	chunk    uint64
	pageSize int
	rest     *restClient
	logger   *zap.Logger
}

// TokenConfig describes the contract a TokenFetcher scans.
type TokenConfig struct {
	BaseURL  string
	Contract string
	// ChunkSize bounds the blocks covered by one tokentx query.
	ChunkSize uint64
	PageSize  int
}

func NewTokenFetcher(chainID string, cfg TokenConfig, opts Options) (*TokenFetcher, error) {
	if cfg.Contract == "" {
		return nil, fmt.Errorf("token %s: contract address is required", chainID)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEtherscanURL
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultTokenChunk
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultTokenPage
	}
	opts = opts.withDefaults(chainID)
	return &TokenFetcher{
		chainID:  chainID,
		contract: strings.ToLower(cfg.Contract),
		apiKey:   opts.APIKey,
		chunk:    cfg.ChunkSize,
		pageSize: cfg.PageSize,
		rest:     newRESTClient(cfg.BaseURL, opts),
		logger:   opts.Logger,
	}, nil
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *explorerResponse) validate() error {
	if r.Status != "0" {
		return nil
	}
	text := strings.ToLower(r.Message + " " + string(r.Result))
	switch {
	case strings.Contains(text, "no transactions found"):
		return nil
	case strings.Contains(text, "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, r.Result)
	default:
		return fmt.Errorf("explorer error: %s: %s", r.Message, r.Result)
	}
}

type tokenTx struct {
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal string `json:"tokenDecimal"`
}

// LatestPosition asks the explorer's proxy module for the head block.
func (f *TokenFetcher) LatestPosition(ctx context.Context) (uint64, error) {
	var resp explorerResponse
	query := f.query(map[string]string{"module": "proxy", "action": "eth_blockNumber"})
	if err := f.rest.getJSON(ctx, "", query, &resp); err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	var hexHead string
	if err := json.Unmarshal(resp.Result, &hexHead); err != nil {
		return 0, fmt.Errorf("latest block: %w: %v", ErrMalformed, err)
	}
	head, err := strconv.ParseUint(strings.TrimPrefix(hexHead, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("latest block: %w: %v", ErrMalformed, err)
	}
	return head, nil
}

// FetchTransfers queries [from, to] in chunks; a failed chunk stops the scan.
// A chunk that overflows the page limit is split in halves until it fits or
// covers a single block.
func (f *TokenFetcher) FetchTransfers(ctx context.Context, from, to uint64) (Batch, error) {
	pending, err := SplitRange(from, to, f.chunk)
	if err != nil {
		return Batch{}, err
	}

	var out []model.RawTransfer
	for len(pending) > 0 {
		chunk := pending[0]
		pending = pending[1:]

		transfers, err := f.fetchChunk(ctx, chunk)
		if errors.Is(err, errPageOverflow) {
			if chunk.Len() > 1 {
				mid := chunk.From + (chunk.To-chunk.From)/2
				f.logger.Debug("split saturated chunk", zap.Uint64("from", chunk.From), zap.Uint64("to", chunk.To))
				pending = append([]Range{{From: chunk.From, To: mid}, {From: mid + 1, To: chunk.To}}, pending...)
				continue
			}
			f.logger.Warn("block exceeds page limit, transfers truncated",
				zap.Uint64("block", chunk.From),
				zap.Int("kept", len(transfers)),
			)
			err = nil
		}
		if err != nil {
			f.logger.Warn("token chunk failed", zap.Uint64("from", chunk.From), zap.Uint64("to", chunk.To), zap.Error(err))
			return partial(out, from, chunk.From, fmt.Errorf("blocks %d-%d: %w", chunk.From, chunk.To, err))
		}
		out = append(out, transfers...)
	}
	return Batch{Transfers: out, LastOK: to}, nil
}

// fetchChunk pages through one chunk. On errPageOverflow the transfers read
// so far are returned with the error.
func (f *TokenFetcher) fetchChunk(ctx context.Context, chunk Range) ([]model.RawTransfer, error) {
	var out []model.RawTransfer
	for page := 1; page <= maxTokenPages; page++ {
		var resp explorerResponse
		query := f.query(map[string]string{
			"module":          "account",
			"action":          "tokentx",
			"contractaddress": f.contract,
			"startblock":      strconv.FormatUint(chunk.From, 10),
			"endblock":        strconv.FormatUint(chunk.To, 10),
			"page":            strconv.Itoa(page),
			"offset":          strconv.Itoa(f.pageSize),
			"sort":            "asc",
		})
		if err := f.rest.getJSON(ctx, "", query, &resp); err != nil {
			return nil, err
		}

		var txs []tokenTx
		if resp.Status == "1" {
			if err := json.Unmarshal(resp.Result, &txs); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		for _, tx := range txs {
			tr, err := parseTokenTx(tx)
			if err != nil {
				f.logger.Warn("drop token transfer", zap.String("hash", tx.Hash), zap.Error(err))
				continue
			}
			out = append(out, tr)
		}
		if len(txs) < f.pageSize {
			return out, nil
		}
	}
	return out, fmt.Errorf("blocks %d-%d: %w", chunk.From, chunk.To, errPageOverflow)
}

func (f *TokenFetcher) query(params map[string]string) map[string]string {
	if f.apiKey != "" {
		params["apikey"] = f.apiKey
	}
	return params
}

func parseTokenTx(tx tokenTx) (model.RawTransfer, error) {
	block, err := strconv.ParseUint(tx.BlockNumber, 10, 64)
	if err != nil {
		return model.RawTransfer{}, fmt.Errorf("block number %q: %w", tx.BlockNumber, err)
	}
	ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
	if err != nil {
		return model.RawTransfer{}, fmt.Errorf("timestamp %q: %w", tx.TimeStamp, err)
	}
	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return model.RawTransfer{}, fmt.Errorf("value %q is not an integer", tx.Value)
	}
	decimals, err := strconv.ParseUint(tx.TokenDecimal, 10, 8)
	if err != nil {
		return model.RawTransfer{}, fmt.Errorf("token decimal %q: %w", tx.TokenDecimal, err)
	}
	if tx.Hash == "" || tx.From == "" || tx.To == "" {
		return model.RawTransfer{}, fmt.Errorf("missing hash or address")
	}
	return model.RawTransfer{
		Hash:      tx.Hash,
		Block:     block,
		From:      tx.From,
		To:        tx.To,
		Value:     value,
		Decimals:  uint8(decimals),
		Timestamp: time.Unix(ts, 0).UTC(),
	}, nil
}
