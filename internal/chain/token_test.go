package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linkContract = "0x514910771AF9Ca656af840dff83E8264EcF986CA"

func newExplorerServer(t *testing.T, failFrom uint64, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		switch q.Get("module") {
		case "proxy":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":83,"result":"0x1234"}`))
		case "account":
			assert.Equal(t, "tokentx", q.Get("action"))
			assert.Equal(t, "0x514910771af9ca656af840dff83e8264ecf986ca", q.Get("contractaddress"))
			assert.Equal(t, "secret", q.Get("apikey"))
			start, _ := strconv.ParseUint(q.Get("startblock"), 10, 64)
			if start == failFrom {
				_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
				return
			}
			if start%20 == 0 {
				_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
				return
			}
			_, _ = fmt.Fprintf(w, `{"status":"1","message":"OK","result":[
 {"blockNumber":"%d","timeStamp":"1700000000","hash":"0xh%d","from":"0xaaa","to":"0xbbb","value":"25000000000000000000000","tokenSymbol":"LINK","tokenDecimal":"18"},
 {"blockNumber":"%d","timeStamp":"1700000000","hash":"0xbad","from":"0xaaa","to":"0xbbb","value":"not-a-number","tokenSymbol":"LINK","tokenDecimal":"18"}
]}`, start, start, start)
		default:
			http.Error(w, "bad module", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestTokenFetcher(t *testing.T, url string) *TokenFetcher {
	t.Helper()
	opts := testOptions()
	opts.APIKey = "secret"
	f, err := NewTokenFetcher("link", TokenConfig{BaseURL: url, Contract: linkContract, ChunkSize: 5}, opts)
	require.NoError(t, err)
	return f
}

func TestTokenLatestPosition(t *testing.T) {
	f := newTestTokenFetcher(t, newExplorerServer(t, 0, nil).URL)

	head, err := f.LatestPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), head)
}

func TestTokenFetchTransfersChunksRange(t *testing.T) {
	var calls int32
	f := newTestTokenFetcher(t, newExplorerServer(t, 0, &calls).URL)

	batch, err := f.FetchTransfers(context.Background(), 1, 12)
	require.NoError(t, err)
	assert.False(t, batch.Partial)
	assert.Equal(t, uint64(12), batch.LastOK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, batch.Transfers, 3)

	tr := batch.Transfers[0]
	assert.Equal(t, "0xh1", tr.Hash)
	assert.Equal(t, uint64(1), tr.Block)
	assert.True(t, decimal.NewFromInt(25000).Equal(tr.Amount()), tr.Amount().String())
}

func TestTokenFetchTransfersStopsAtFailedChunk(t *testing.T) {
	f := newTestTokenFetcher(t, newExplorerServer(t, 6, nil).URL)

	batch, err := f.FetchTransfers(context.Background(), 1, 15)
	require.NoError(t, err)
	assert.True(t, batch.Partial)
	assert.Equal(t, uint64(5), batch.LastOK)
	assert.Len(t, batch.Transfers, 1)
	assert.ErrorIs(t, batch.Err, ErrRateLimited)
}

func TestTokenFetchTransfersEmptyChunk(t *testing.T) {
	f := newTestTokenFetcher(t, newExplorerServer(t, 0, nil).URL)

	batch, err := f.FetchTransfers(context.Background(), 20, 24)
	require.NoError(t, err)
	assert.Empty(t, batch.Transfers)
	assert.Equal(t, uint64(24), batch.LastOK)
}

func TestNewTokenFetcherRequiresContract(t *testing.T) {
	_, err := NewTokenFetcher("link", TokenConfig{}, testOptions())
	require.Error(t, err)
}

// newBusyExplorer returns full pages for ranges wider than maxWidth blocks
// and one transfer per block otherwise.
func newBusyExplorer(t *testing.T, pageSize int, maxWidth uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, _ := strconv.ParseUint(q.Get("startblock"), 10, 64)
		end, _ := strconv.ParseUint(q.Get("endblock"), 10, 64)
		page, _ := strconv.Atoi(q.Get("page"))

		rows := 1
		if end-start+1 > maxWidth {
			rows = pageSize
		}
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[`))
		for i := 0; i < rows; i++ {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			_, _ = fmt.Fprintf(w, `{"blockNumber":"%d","timeStamp":"1700000000","hash":"0x%d-%d-%d","from":"0xaaa","to":"0xbbb","value":"1000","tokenSymbol":"LINK","tokenDecimal":"0"}`,
				start, start, page, i)
		}
		_, _ = w.Write([]byte(`]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenFetchTransfersSplitsSaturatedChunk(t *testing.T) {
	srv := newBusyExplorer(t, 2, 1)
	f, err := NewTokenFetcher("link", TokenConfig{BaseURL: srv.URL, Contract: linkContract, ChunkSize: 4, PageSize: 2}, testOptions())
	require.NoError(t, err)

	batch, err := f.FetchTransfers(context.Background(), 100, 103)
	require.NoError(t, err)
	assert.False(t, batch.Partial)
	assert.Equal(t, uint64(103), batch.LastOK)
	require.Len(t, batch.Transfers, 4)
	for i, tr := range batch.Transfers {
		assert.Equal(t, uint64(100+i), tr.Block)
	}
}

func TestTokenFetchTransfersProgressesPastSaturatedBlock(t *testing.T) {
	srv := newBusyExplorer(t, 2, 0)
	f, err := NewTokenFetcher("link", TokenConfig{BaseURL: srv.URL, Contract: linkContract, ChunkSize: 1, PageSize: 2}, testOptions())
	require.NoError(t, err)

	batch, err := f.FetchTransfers(context.Background(), 100, 105)
	require.NoError(t, err)
	assert.False(t, batch.Partial)
	assert.Equal(t, uint64(105), batch.LastOK)
	assert.Len(t, batch.Transfers, 6*maxTokenPages*2)
}
