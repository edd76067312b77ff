package state

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// fakeBlobService mimics the list/put/download surface of the blob API.
// The API lives under base; pageSize > 0 splits listings into cursor pages.
type fakeBlobService struct {
	mu       sync.Mutex
	base     string
	pageSize int
	blobs    map[string][]byte
	headers  []http.Header
	requests []string
	srv      *httptest.Server
}

func newFakeBlobService(t *testing.T) *fakeBlobService {
	f := &fakeBlobService{blobs: make(map[string][]byte)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBlobService) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, r.Header.Clone())
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/download/"):
		data, ok := f.blobs[strings.TrimPrefix(path, "/download/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	case r.Method == http.MethodPut && strings.HasPrefix(path, f.base+"/"):
		body, _ := io.ReadAll(r.Body)
		f.blobs[strings.TrimPrefix(path, f.base+"/")] = body
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && strings.TrimSuffix(path, "/") == f.base:
		f.list(w, r)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeBlobService) list(w http.ResponseWriter, r *http.Request) {
	type blob struct {
		URL      string `json:"url"`
		Pathname string `json:"pathname"`
	}
	out := struct {
		Blobs   []blob `json:"blobs"`
		Cursor  string `json:"cursor,omitempty"`
		HasMore bool   `json:"hasMore"`
	}{Blobs: []blob{}}

	prefix := r.URL.Query().Get("prefix")
	var names []string
	for p := range f.blobs {
		if strings.HasPrefix(p, prefix) {
			names = append(names, p)
		}
	}
	sort.Strings(names)

	start, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	end := len(names)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
		out.HasMore = true
		out.Cursor = strconv.Itoa(end)
	}
	for _, p := range names[start:end] {
		out.Blobs = append(out.Blobs, blob{URL: f.srv.URL + "/download/" + p, Pathname: p})
	}
	_ = json.NewEncoder(w).Encode(out)
}

func newTestBlobStore(f *fakeBlobService, ns string) *BlobStore {
	return NewBlobStore(BlobConfig{
		BaseURL:   f.srv.URL,
		StoreID:   "store_123",
		Token:     "tok",
		Namespace: ns,
	})
}

func TestBlobStore_PutThenGet(t *testing.T) {
	f := newFakeBlobService(t)
	store := newTestBlobStore(f, "dev-rpc-dashboard")
	ctx := context.Background()

	want := model.ChainState{BlockNumber: 19000000, BlockID: "0x121eac0", TxID: "0xabc"}
	require.NoError(t, store.Put(ctx, types.ChainEthereum, want))

	got, err := store.Get(ctx, types.ChainEthereum)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw := f.blobs["dev-rpc-dashboard/ethereum.json"]
	require.NotEmpty(t, raw)
	assert.Contains(t, string(raw), `"updated_at"`)

	put := f.headers[0]
	assert.Equal(t, "store_123", put.Get("x-store-id"))
	assert.Equal(t, "false", put.Get("x-add-random-suffix"))
	assert.Equal(t, "private", put.Get("x-access"))
	assert.Equal(t, "0", put.Get("x-cache-control-max-age"))
}

func TestBlobStore_LastWriteWins(t *testing.T) {
	f := newFakeBlobService(t)
	store := newTestBlobStore(f, "dev-rpc-dashboard")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, types.ChainSolana, model.ChainState{BlockNumber: 1, BlockID: "1", TxID: "a"}))
	require.NoError(t, store.Put(ctx, types.ChainSolana, model.ChainState{BlockNumber: 2, BlockID: "2", TxID: "b"}))

	got, err := store.Get(ctx, types.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.BlockNumber)
}

func TestBlobStore_MissIsNotFound(t *testing.T) {
	f := newFakeBlobService(t)
	ctx := context.Background()

	prod := newTestBlobStore(f, "prod-rpc-dashboard")
	dev := newTestBlobStore(f, "dev-rpc-dashboard")
	require.NoError(t, prod.Put(ctx, types.ChainTON, model.ChainState{BlockNumber: 5, BlockID: "-1:8000000000000000:5", TxID: "h"}))

	_, err := dev.Get(ctx, types.ChainTON)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = prod.Get(ctx, types.ChainBase)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobStore_BackendErrorIsNotMiss(t *testing.T) {
	f := newFakeBlobService(t)
	store := NewBlobStore(BlobConfig{BaseURL: f.srv.URL, Token: "wrong", Namespace: "dev-rpc-dashboard"})

	_, err := store.Get(context.Background(), types.ChainEthereum)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestBlobStore_BaseURLWithPath(t *testing.T) {
	for _, base := range []string{"/api/blob", "/api/blob/"} {
		t.Run(base, func(t *testing.T) {
			f := newFakeBlobService(t)
			f.base = "/api/blob"
			store := NewBlobStore(BlobConfig{
				BaseURL:   f.srv.URL + base,
				Token:     "tok",
				Namespace: "dev-rpc-dashboard",
			})
			ctx := context.Background()

			want := model.ChainState{BlockNumber: 7, BlockID: "7", TxID: "t"}
			require.NoError(t, store.Put(ctx, types.ChainBase, want))
			got, err := store.Get(ctx, types.ChainBase)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, "PUT /api/blob/dev-rpc-dashboard/base.json", f.requests[0])
		})
	}
}

func TestBlobStore_GetFollowsListingCursor(t *testing.T) {
	f := newFakeBlobService(t)
	f.pageSize = 1
	store := newTestBlobStore(f, "dev-rpc-dashboard")
	ctx := context.Background()

	for i, chain := range []types.Blockchain{types.ChainArbitrum, types.ChainBase, types.ChainTON} {
		require.NoError(t, store.Put(ctx, chain, model.ChainState{BlockNumber: uint64(i + 1), BlockID: "b", TxID: "t"}))
	}

	got, err := store.Get(ctx, types.ChainTON)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.BlockNumber)

	_, err = store.Get(ctx, types.ChainSolana)
	assert.ErrorIs(t, err, ErrNotFound)
}
