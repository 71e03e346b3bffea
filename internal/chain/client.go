package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whaleScope/internal/model"
	"whaleScope/internal/retry"
)

const evmDecimals = 18

// rpcLimitExceeded is the JSON-RPC code public nodes use for throttling.
const rpcLimitExceeded = -32005

type evmBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// EVMFetcher scans native-coin transfers on an EVM chain block by block.
type EVMFetcher struct {
	chainID   string
	rpcClient *rpc.Client
	backend   evmBackend
	limiter   *rate.Limiter
	policy    retry.Policy
	logger    *zap.Logger

	mu     sync.Mutex
	signer types.Signer
}

// DialEVM connects to an EVM JSON-RPC endpoint.
func DialEVM(ctx context.Context, chainID, rpcURL string, opts Options) (*EVMFetcher, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", chainID, err)
	}
	f := newEVMFetcher(chainID, ethclient.NewClient(rpcClient), opts)
	f.rpcClient = rpcClient
	return f, nil
}

func newEVMFetcher(chainID string, backend evmBackend, opts Options) *EVMFetcher {
	opts = opts.withDefaults(chainID)
	return &EVMFetcher{
		chainID: chainID,
		backend: backend,
		limiter: opts.limiter(),
		policy:  opts.Retry,
		logger:  opts.Logger,
	}
}

// Close closes the underlying RPC client.
func (f *EVMFetcher) Close() {
	if f.rpcClient != nil {
		f.rpcClient.Close()
	}
}

// LatestPosition returns the latest block number.
func (f *EVMFetcher) LatestPosition(ctx context.Context) (uint64, error) {
	var head uint64
	err := f.call(ctx, func(ctx context.Context) error {
		var err error
		head, err = f.backend.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	return head, nil
}

// FetchTransfers walks [from, to] one block at a time in ascending order and
// stops at the first block that cannot be fetched.
func (f *EVMFetcher) FetchTransfers(ctx context.Context, from, to uint64) (Batch, error) {
	signer, err := f.signerFor(ctx)
	if err != nil {
		return Batch{}, err
	}

	var out []model.RawTransfer
	for number := from; number <= to; number++ {
		var block *types.Block
		err := f.call(ctx, func(ctx context.Context) error {
			var err error
			block, err = f.backend.BlockByNumber(ctx, new(big.Int).SetUint64(number))
			return err
		})
		if err != nil {
			f.logger.Warn("block fetch failed", zap.Uint64("block", number), zap.Error(err))
			return partial(out, from, number, fmt.Errorf("block %d: %w", number, err))
		}
		out = append(out, blockTransfers(block, signer, f.logger)...)
	}

	return Batch{Transfers: out, LastOK: to}, nil
}

func (f *EVMFetcher) signerFor(ctx context.Context) (types.Signer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signer != nil {
		return f.signer, nil
	}

	var id *big.Int
	err := f.call(ctx, func(ctx context.Context) error {
		var err error
		id, err = f.backend.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	f.signer = types.LatestSignerForChainID(id)
	return f.signer, nil
}

func (f *EVMFetcher) call(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, f.policy, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		return evmError(fn(ctx))
	})
}

// blockTransfers extracts value-bearing transactions from a block. Contract
// creations and zero-value calls are skipped.
func blockTransfers(block *types.Block, signer types.Signer, logger *zap.Logger) []model.RawTransfer {
	ts := time.Unix(int64(block.Time()), 0).UTC()
	out := make([]model.RawTransfer, 0)
	for _, tx := range block.Transactions() {
		to := tx.To()
		if to == nil || tx.Value().Sign() == 0 {
			continue
		}
		from, err := types.Sender(signer, tx)
		if err != nil {
			logger.Warn("drop transaction without sender",
				zap.Uint64("block", block.NumberU64()),
				zap.String("hash", tx.Hash().Hex()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, model.RawTransfer{
			Hash:      tx.Hash().Hex(),
			Block:     block.NumberU64(),
			From:      from.Hex(),
			To:        to.Hex(),
			Value:     new(big.Int).Set(tx.Value()),
			Decimals:  evmDecimals,
			Timestamp: ts,
		})
	}
	return out
}

// evmError maps go-ethereum transport errors onto the fetch error taxonomy.
func evmError(err error) error {
	if err == nil {
		return nil
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return &StatusError{Code: httpErr.StatusCode, Body: string(httpErr.Body)}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcLimitExceeded {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}
