package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whaleScope/internal/retry"
)

type fakeEVM struct {
	chainID *big.Int
	head    uint64
	blocks  map[uint64]*types.Block
	fail    map[uint64]error
}

func (f *fakeEVM) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeEVM) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeEVM) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	n := number.Uint64()
	if err, ok := f.fail[n]; ok {
		return nil, err
	}
	if b, ok := f.blocks[n]; ok {
		return b, nil
	}
	return types.NewBlockWithHeader(&types.Header{Number: number}), nil
}

func testOptions() Options {
	return Options{Retry: retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}}
}

func signedTransfer(t *testing.T, key *ecdsa.PrivateKey, signer types.Signer, nonce uint64, to *common.Address, value int64) *types.Transaction {
	t.Helper()
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	require.NoError(t, err)
	return tx
}

func blockWith(number, ts uint64, txs ...*types.Transaction) *types.Block {
	header := &types.Header{Number: new(big.Int).SetUint64(number), Time: ts}
	return types.NewBlockWithHeader(header).WithBody(txs, nil)
}

func TestBlockTransfersSkipsCreationsAndZeroValue(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(big.NewInt(1))
	sender := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0x28c6c06298d514db089934071355e5743bf21d60")

	transfer := signedTransfer(t, key, signer, 0, &to, 5)
	block := blockWith(10, 1700000000,
		transfer,
		signedTransfer(t, key, signer, 1, nil, 7),
		signedTransfer(t, key, signer, 2, &to, 0),
	)

	got := blockTransfers(block, signer, zap.NewNop())
	require.Len(t, got, 1)
	assert.Equal(t, transfer.Hash().Hex(), got[0].Hash)
	assert.Equal(t, sender.Hex(), got[0].From)
	assert.Equal(t, to.Hex(), got[0].To)
	assert.Equal(t, uint64(10), got[0].Block)
	assert.Equal(t, int64(5), got[0].Value.Int64())
	assert.Equal(t, uint8(18), got[0].Decimals)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got[0].Timestamp)
}

func TestEVMFetchTransfersStopsAtFailedBlock(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(big.NewInt(1))
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")

	backend := &fakeEVM{
		chainID: big.NewInt(1),
		head:    105,
		blocks: map[uint64]*types.Block{
			100: blockWith(100, 1, signedTransfer(t, key, signer, 0, &to, 1)),
			101: blockWith(101, 2, signedTransfer(t, key, signer, 1, &to, 2)),
			103: blockWith(103, 4, signedTransfer(t, key, signer, 2, &to, 3)),
		},
		fail: map[uint64]error{102: errors.New("upstream down")},
	}
	f := newEVMFetcher("eth", backend, testOptions())

	batch, err := f.FetchTransfers(context.Background(), 100, 103)
	require.NoError(t, err)
	assert.True(t, batch.Partial)
	assert.Equal(t, uint64(101), batch.LastOK)
	assert.Len(t, batch.Transfers, 2)
	assert.Error(t, batch.Err)
}

func TestEVMFetchTransfersFailsWhenFirstBlockFails(t *testing.T) {
	backend := &fakeEVM{
		chainID: big.NewInt(1),
		fail:    map[uint64]error{100: errors.New("upstream down")},
	}
	f := newEVMFetcher("eth", backend, testOptions())

	_, err := f.FetchTransfers(context.Background(), 100, 101)
	require.Error(t, err)
}

func TestEVMLatestPosition(t *testing.T) {
	f := newEVMFetcher("eth", &fakeEVM{chainID: big.NewInt(1), head: 19000000}, testOptions())

	head, err := f.LatestPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(19000000), head)
}

func TestEVMErrorMapsThrottling(t *testing.T) {
	err := evmError(rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, retry.RateLimited, ClassifyError(err))

	err = evmError(rpc.HTTPError{StatusCode: 403, Body: []byte("forbidden")})
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, retry.Fatal, ClassifyError(err))
}
