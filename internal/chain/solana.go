package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"go.uber.org/zap"

	"whaleScope/internal/model"
)

const (
	// DefaultSolanaURL is the public mainnet RPC endpoint.
	DefaultSolanaURL = "https://api.mainnet-beta.solana.com"

	systemProgramID       = "11111111111111111111111111111111"
	systemTransferTag     = 2
	solDecimals           = 9
	rpcSlotSkipped        = -32007
	rpcSlotMissing        = -32009
	rpcSolanaLimitReached = -32005
)

// RPCError is an error object returned in a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) slotUnavailable() bool {
	return e.Code == rpcSlotSkipped || e.Code == rpcSlotMissing
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (r *rpcResponse) validate() error {
	if r.Error == nil {
		return nil
	}
	if r.Error.Code == rpcSolanaLimitReached {
		return fmt.Errorf("%w: %v", ErrRateLimited, r.Error)
	}
	return r.Error
}

// SolanaFetcher scans system-program SOL transfers slot by slot.
type SolanaFetcher struct {
	chainID string
	rest    *restClient
	logger  *zap.Logger
}

func NewSolanaFetcher(chainID, rpcURL string, opts Options) *SolanaFetcher {
	if rpcURL == "" {
		rpcURL = DefaultSolanaURL
	}
	opts = opts.withDefaults(chainID)
	return &SolanaFetcher{
		chainID: chainID,
		rest:    newRESTClient(rpcURL, opts),
		logger:  opts.Logger,
	}
}

type solBlock struct {
	BlockTime *int64  `json:"blockTime"`
	Txs       []solTx `json:"transactions"`
}

type solTx struct {
	Meta *struct {
		Err             json.RawMessage `json:"err"`
		LoadedAddresses struct {
			Writable []string `json:"writable"`
			Readonly []string `json:"readonly"`
		} `json:"loadedAddresses"`
	} `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys  []string         `json:"accountKeys"`
			Instructions []solInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type solInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

func (f *SolanaFetcher) call(ctx context.Context, method string, params []any, out any) error {
	var resp rpcResponse
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	if err := f.rest.postJSON(ctx, "", req, &resp); err != nil {
		return err
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return fmt.Errorf("%s: %w: empty result", method, ErrMalformed)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrMalformed, err)
	}
	return nil
}

func (f *SolanaFetcher) LatestPosition(ctx context.Context) (uint64, error) {
	var slot uint64
	params := []any{map[string]string{"commitment": "finalized"}}
	if err := f.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, fmt.Errorf("latest slot: %w", err)
	}
	return slot, nil
}

// FetchTransfers lists the produced slots in [from, to] and scans them in
// ascending order. Skipped slots count as scanned.
func (f *SolanaFetcher) FetchTransfers(ctx context.Context, from, to uint64) (Batch, error) {
	var slots []uint64
	params := []any{from, to, map[string]string{"commitment": "finalized"}}
	if err := f.call(ctx, "getBlocks", params, &slots); err != nil {
		return Batch{}, fmt.Errorf("list slots %d-%d: %w", from, to, err)
	}

	var out []model.RawTransfer
	for _, slot := range slots {
		if slot < from || slot > to {
			continue
		}
		block, err := f.block(ctx, slot)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) && rpcErr.slotUnavailable() {
				f.logger.Debug("slot unavailable", zap.Uint64("slot", slot), zap.Error(err))
				continue
			}
			f.logger.Warn("slot fetch failed", zap.Uint64("slot", slot), zap.Error(err))
			return partial(out, from, slot, fmt.Errorf("slot %d: %w", slot, err))
		}
		out = append(out, f.blockTransfers(slot, block)...)
	}
	return Batch{Transfers: out, LastOK: to}, nil
}

func (f *SolanaFetcher) block(ctx context.Context, slot uint64) (solBlock, error) {
	var block solBlock
	params := []any{slot, map[string]any{
		"encoding":                       "json",
		"transactionDetails":             "full",
		"rewards":                        false,
		"commitment":                     "finalized",
		"maxSupportedTransactionVersion": 0,
	}}
	err := f.call(ctx, "getBlock", params, &block)
	return block, err
}

// blockTransfers returns every system transfer of successful transactions.
// Transfers of one transaction share its signature and are ordered largest
// first, so the largest one that survives classification wins.
func (f *SolanaFetcher) blockTransfers(slot uint64, block solBlock) []model.RawTransfer {
	ts := time.Unix(0, 0).UTC()
	if block.BlockTime != nil {
		ts = time.Unix(*block.BlockTime, 0).UTC()
	}

	out := make([]model.RawTransfer, 0)
	for _, tx := range block.Txs {
		if len(tx.Transaction.Signatures) == 0 {
			continue
		}
		if tx.Meta != nil && len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null" {
			continue
		}
		keys := tx.Transaction.Message.AccountKeys
		if tx.Meta != nil {
			loaded := tx.Meta.LoadedAddresses
			keys = append(keys[:len(keys):len(keys)], loaded.Writable...)
			keys = append(keys, loaded.Readonly...)
		}

		first := len(out)
		for _, ix := range tx.Transaction.Message.Instructions {
			from, to, lamports, ok := decodeSystemTransfer(keys, ix)
			if !ok {
				continue
			}
			out = append(out, model.RawTransfer{
				Hash:      tx.Transaction.Signatures[0],
				Block:     slot,
				From:      from,
				To:        to,
				Value:     new(big.Int).SetUint64(lamports),
				Decimals:  solDecimals,
				Timestamp: ts,
			})
		}
		txTransfers := out[first:]
		sort.SliceStable(txTransfers, func(i, j int) bool {
			return txTransfers[i].Value.Cmp(txTransfers[j].Value) > 0
		})
	}
	return out
}

// decodeSystemTransfer decodes a system program Transfer instruction:
// a little-endian u32 tag of 2 followed by a u64 lamport amount.
func decodeSystemTransfer(keys []string, ix solInstruction) (from, to string, lamports uint64, ok bool) {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) || keys[ix.ProgramIDIndex] != systemProgramID {
		return "", "", 0, false
	}
	if len(ix.Accounts) < 2 {
		return "", "", 0, false
	}
	data := base58.Decode(ix.Data)
	if len(data) < 12 || binary.LittleEndian.Uint32(data[:4]) != systemTransferTag {
		return "", "", 0, false
	}
	src, dst := ix.Accounts[0], ix.Accounts[1]
	if src < 0 || src >= len(keys) || dst < 0 || dst >= len(keys) {
		return "", "", 0, false
	}
	lamports = binary.LittleEndian.Uint64(data[4:12])
	if lamports == 0 {
		return "", "", 0, false
	}
	return keys[src], keys[dst], lamports, true
}
