package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Call(t *testing.T) {
	rpc := newFakeRPC(t, map[string]rpcHandler{
		"getSlot": result(42),
		"broken": func(json.RawMessage) (any, *RPCError) {
			return nil, &RPCError{Code: -32004, Message: "Block not available"}
		},
	})
	client := NewClient(rpc.URL(), http.DefaultClient)
	ctx := context.Background()

	var slot uint64
	require.NoError(t, client.Call(ctx, "getSlot", nil, &slot))
	assert.Equal(t, uint64(42), slot)

	err := client.Call(ctx, "broken", nil, nil)
	require.Error(t, err)
	code, ok := rpcErrorCode(err)
	assert.True(t, ok)
	assert.Equal(t, -32004, code)
}

func TestClient_StringError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"LITE_SERVER_UNKNOWN","code":500}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, http.DefaultClient).Call(context.Background(), "getMasterchainInfo", map[string]any{}, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 500, rpcErr.Code)
	assert.Equal(t, "LITE_SERVER_UNKNOWN", rpcErr.Message)
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, http.DefaultClient).Call(context.Background(), "eth_blockNumber", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}
