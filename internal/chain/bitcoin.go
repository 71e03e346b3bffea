package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"go.uber.org/zap"

	"whaleScope/internal/model"
)

const (
	// DefaultBitcoinURL is the blockchain.info explorer.
	DefaultBitcoinURL = "https://blockchain.info"
	btcDecimals       = 8
)

// BitcoinFetcher scans blocks through a blockchain.info compatible explorer.
// Each transaction becomes one transfer: outputs are summed, the sender is
// the first input's address and the receiver the first output's.
type BitcoinFetcher struct {
	chainID string
	rest    *restClient
	logger  *zap.Logger
}

func NewBitcoinFetcher(chainID, baseURL string, opts Options) *BitcoinFetcher {
	if baseURL == "" {
		baseURL = DefaultBitcoinURL
	}
	opts = opts.withDefaults(chainID)
	return &BitcoinFetcher{
		chainID: chainID,
		rest:    newRESTClient(baseURL, opts),
		logger:  opts.Logger,
	}
}

type btcLatestBlock struct {
	Height uint64 `json:"height"`
}

type btcBlockPage struct {
	Blocks []btcBlock `json:"blocks"`
}

type btcBlock struct {
	Hash      string  `json:"hash"`
	Height    uint64  `json:"height"`
	Time      int64   `json:"time"`
	MainChain bool    `json:"main_chain"`
	Tx        []btcTx `json:"tx"`
}

type btcTx struct {
	Hash   string     `json:"hash"`
	Time   int64      `json:"time"`
	Inputs []btcInput `json:"inputs"`
	Out    []btcOut   `json:"out"`
}

type btcInput struct {
	PrevOut *btcOut `json:"prev_out"`
}

type btcOut struct {
	Addr  string `json:"addr"`
	Value int64  `json:"value"`
}

func (f *BitcoinFetcher) LatestPosition(ctx context.Context) (uint64, error) {
	var latest btcLatestBlock
	if err := f.rest.getJSON(ctx, "/latestblock", nil, &latest); err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	if latest.Height == 0 {
		return 0, fmt.Errorf("latest block: %w: missing height", ErrMalformed)
	}
	return latest.Height, nil
}

func (f *BitcoinFetcher) FetchTransfers(ctx context.Context, from, to uint64) (Batch, error) {
	var out []model.RawTransfer
	for height := from; height <= to; height++ {
		block, err := f.block(ctx, height)
		if err != nil {
			f.logger.Warn("block fetch failed", zap.Uint64("block", height), zap.Error(err))
			return partial(out, from, height, fmt.Errorf("block %d: %w", height, err))
		}
		out = append(out, f.blockTransfers(block)...)
	}
	return Batch{Transfers: out, LastOK: to}, nil
}

func (f *BitcoinFetcher) block(ctx context.Context, height uint64) (btcBlock, error) {
	var page btcBlockPage
	path := "/block-height/" + strconv.FormatUint(height, 10)
	if err := f.rest.getJSON(ctx, path, map[string]string{"format": "json"}, &page); err != nil {
		return btcBlock{}, err
	}
	if len(page.Blocks) == 0 {
		return btcBlock{}, fmt.Errorf("%w: no block at height %d", ErrMalformed, height)
	}
	for _, b := range page.Blocks {
		if b.MainChain {
			return b, nil
		}
	}
	return btcBlock{}, fmt.Errorf("%w: no main chain block at height %d", ErrMalformed, height)
}

func (f *BitcoinFetcher) blockTransfers(block btcBlock) []model.RawTransfer {
	out := make([]model.RawTransfer, 0, len(block.Tx))
	for _, tx := range block.Tx {
		if len(tx.Inputs) == 0 || tx.Inputs[0].PrevOut == nil || len(tx.Out) == 0 {
			// coinbase or empty
			continue
		}
		sender := tx.Inputs[0].PrevOut.Addr
		receiver := tx.Out[0].Addr
		if sender == "" || receiver == "" {
			f.logger.Debug("drop transaction without addresses", zap.String("hash", tx.Hash))
			continue
		}

		var total btcutil.Amount
		for _, o := range tx.Out {
			total += btcutil.Amount(o.Value)
		}
		if total <= 0 {
			continue
		}

		ts := tx.Time
		if ts == 0 {
			ts = block.Time
		}
		out = append(out, model.RawTransfer{
			Hash:      tx.Hash,
			Block:     block.Height,
			From:      sender,
			To:        receiver,
			Value:     big.NewInt(int64(total)),
			Decimals:  btcDecimals,
			Timestamp: time.Unix(ts, 0).UTC(),
		})
	}
	return out
}
