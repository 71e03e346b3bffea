package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferData(lamports uint64) string {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[:4], systemTransferTag)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return base58.Encode(data)
}

func solBlockJSON(slot uint64) string {
	return fmt.Sprintf(`{"blockTime":1700000000,"transactions":[
 {"meta":{"err":null,"loadedAddresses":{"writable":[],"readonly":[]}},
  "transaction":{"signatures":["sig-%d"],"message":{
   "accountKeys":["5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9","UserWallet111","11111111111111111111111111111111"],
   "instructions":[
    {"programIdIndex":2,"accounts":[0,1],"data":%q},
    {"programIdIndex":2,"accounts":[0,1],"data":%q}
   ]}}},
 {"meta":{"err":{"InstructionError":[0,"Custom"]}},
  "transaction":{"signatures":["failed-%d"],"message":{
   "accountKeys":["a","b","11111111111111111111111111111111"],
   "instructions":[{"programIdIndex":2,"accounts":[0,1],"data":%q}]}}}
]}`, slot, transferData(5_000_000_000), transferData(1_500_000_000_000), slot, transferData(9_000_000_000_000))
}

func newSolanaServer(t *testing.T, failSlot uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case "getSlot":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":250000000}`))
		case "getBlocks":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":[100,102,103]}`))
		case "getBlock":
			var slot uint64
			_ = json.Unmarshal(req.Params[0], &slot)
			switch slot {
			case failSlot:
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32004,"message":"Block not available for slot"}}`))
			case 102:
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32007,"message":"Slot 102 was skipped"}}`))
			default:
				_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, solBlockJSON(slot))
			}
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSolanaLatestPosition(t *testing.T) {
	f := NewSolanaFetcher("sol", newSolanaServer(t, 0).URL, testOptions())

	slot, err := f.LatestPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(250000000), slot)
}

func TestSolanaFetchTransfersReturnsEveryTransferLargestFirst(t *testing.T) {
	f := NewSolanaFetcher("sol", newSolanaServer(t, 0).URL, testOptions())

	batch, err := f.FetchTransfers(context.Background(), 100, 103)
	require.NoError(t, err)
	assert.False(t, batch.Partial)
	assert.Equal(t, uint64(103), batch.LastOK)
	require.Len(t, batch.Transfers, 4)

	tr := batch.Transfers[0]
	assert.Equal(t, "sig-100", tr.Hash)
	assert.Equal(t, uint64(100), tr.Block)
	assert.Equal(t, "5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9", tr.From)
	assert.Equal(t, "UserWallet111", tr.To)
	assert.True(t, decimal.NewFromInt(1500).Equal(tr.Amount()), tr.Amount().String())

	assert.Equal(t, "sig-100", batch.Transfers[1].Hash)
	assert.True(t, decimal.NewFromInt(5).Equal(batch.Transfers[1].Amount()), batch.Transfers[1].Amount().String())
	assert.Equal(t, "sig-103", batch.Transfers[2].Hash)
	assert.Equal(t, "sig-103", batch.Transfers[3].Hash)
}

func TestSolanaBlockTransfersKeepsSmallerTransfers(t *testing.T) {
	f := NewSolanaFetcher("sol", "http://unused", testOptions())
	var block solBlock
	require.NoError(t, json.Unmarshal([]byte(`{"blockTime":1700000000,"transactions":[
 {"meta":{"err":null},
  "transaction":{"signatures":["sig-mixed"],"message":{
   "accountKeys":["ExchA","ExchB","User1","11111111111111111111111111111111"],
   "instructions":[
    {"programIdIndex":3,"accounts":[2,0],"data":"`+transferData(1_500_000_000_000)+`"},
    {"programIdIndex":3,"accounts":[0,1],"data":"`+transferData(5_000_000_000_000)+`"}
   ]}}}
]}`), &block))

	got := f.blockTransfers(7, block)
	require.Len(t, got, 2)
	assert.Equal(t, "ExchA", got[0].From)
	assert.Equal(t, "ExchB", got[0].To)
	assert.Equal(t, "User1", got[1].From)
	assert.Equal(t, "ExchA", got[1].To)
	assert.True(t, decimal.NewFromInt(1500).Equal(got[1].Amount()))
}

func TestSolanaFetchTransfersPartial(t *testing.T) {
	f := NewSolanaFetcher("sol", newSolanaServer(t, 103).URL, testOptions())

	batch, err := f.FetchTransfers(context.Background(), 100, 105)
	require.NoError(t, err)
	assert.True(t, batch.Partial)
	assert.Equal(t, uint64(102), batch.LastOK)
	require.Len(t, batch.Transfers, 2)

	var rpcErr *RPCError
	require.ErrorAs(t, batch.Err, &rpcErr)
	assert.Equal(t, -32004, rpcErr.Code)
}

func TestDecodeSystemTransferRejectsOtherInstructions(t *testing.T) {
	keys := []string{"a", "b", systemProgramID, "Vote111111111111111111111111111111111111111"}

	_, _, _, ok := decodeSystemTransfer(keys, solInstruction{ProgramIDIndex: 3, Accounts: []int{0, 1}, Data: transferData(10)})
	assert.False(t, ok)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[:4], 0)
	_, _, _, ok = decodeSystemTransfer(keys, solInstruction{ProgramIDIndex: 2, Accounts: []int{0, 1}, Data: base58.Encode(data)})
	assert.False(t, ok)

	_, _, _, ok = decodeSystemTransfer(keys, solInstruction{ProgramIDIndex: 2, Accounts: []int{0, 9}, Data: transferData(10)})
	assert.False(t, ok)

	from, to, lamports, ok := decodeSystemTransfer(keys, solInstruction{ProgramIDIndex: 2, Accounts: []int{1, 0}, Data: transferData(10)})
	require.True(t, ok)
	assert.Equal(t, "b", from)
	assert.Equal(t, "a", to)
	assert.Equal(t, uint64(10), lamports)
}
