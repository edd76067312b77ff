package fetch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type rpcHandler func(params json.RawMessage) (any, *RPCError)

// fakeRPC is a JSON-RPC server dispatching on method name
type fakeRPC struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    []string
	srv      *httptest.Server
}

func newFakeRPC(t *testing.T, handlers map[string]rpcHandler) *fakeRPC {
	f := &fakeRPC{handlers: handlers}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.calls = append(f.calls, req.Method)
		h, ok := f.handlers[req.Method]
		f.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if !ok {
			resp["error"] = RPCError{Code: -32601, Message: "method not found"}
		} else if result, rpcErr := h(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRPC) URL() string {
	return f.srv.URL
}

func (f *fakeRPC) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func result(v any) rpcHandler {
	return func(json.RawMessage) (any, *RPCError) { return v, nil }
}
