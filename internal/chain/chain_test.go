package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockHash = "0x4c1e879872344349067c3b1a30781eeb4f9040d3795db7922f513f6f9660b9b2"

func newRPCServer(t *testing.T, count uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "getblockcount":
			resp.Result, _ = json.Marshal(count)
		case "getblockhash":
			if req.Params[0].(float64) >= float64(count) {
				resp.Error = &RPCError{Code: -100, Message: "Unknown block"}
				break
			}
			resp.Result, _ = json.Marshal(blockHash)
		default:
			resp.Error = &RPCError{Code: -32601, Message: "Method not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientHead(t *testing.T) {
	srv := newRPCServer(t, 1200)
	c, err := NewClient(Config{RPCURL: srv.URL})
	require.NoError(t, err)

	head, err := c.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1199), head.Height)
	require.Len(t, head.Hash, 32)

	decoded, err := util.Uint256DecodeBytesBE(head.Hash)
	require.NoError(t, err)
	assert.Equal(t, blockHash[2:], decoded.StringLE())
}

func TestClientRPCError(t *testing.T) {
	srv := newRPCServer(t, 10)
	c, err := NewClient(Config{RPCURL: srv.URL})
	require.NoError(t, err)

	_, err = c.HeadAt(context.Background(), 50)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -100, rpcErr.Code)

	_, err = NewClient(Config{})
	assert.Error(t, err)
}

func TestClockHeight(t *testing.T) {
	genesis := time.Unix(1700000000, 0)
	c := NewClock(genesis, 10*time.Second, []byte("salt"))
	c.now = func() time.Time { return genesis.Add(95 * time.Second) }

	head, err := c.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), head.Height)
	assert.Equal(t, genesis.Add(90*time.Second), head.Time)

	again, err := c.HeadAt(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, head.Hash, again.Hash)

	other, err := c.HeadAt(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEqual(t, head.Hash, other.Hash)
}

func TestManualAdvance(t *testing.T) {
	m := NewManual(5)
	ctx := context.Background()

	_, err := m.HeadAt(ctx, 6)
	assert.Error(t, err)

	assert.Equal(t, uint64(8), m.Advance(3))
	head, err := m.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), head.Height)

	past, err := m.HeadAt(ctx, 6)
	require.NoError(t, err)
	assert.Len(t, past.Hash, 32)
}
