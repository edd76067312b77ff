package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yourorg/rpc-dashboard/internal/model"
)

// TONFetcher reads the last masterchain block and one of its transactions
// through a toncenter-compatible JSON-RPC endpoint
type TONFetcher struct {
	httpClient *http.Client
}

// NewTONFetcher creates a TON state fetcher
func NewTONFetcher(httpClient *http.Client) *TONFetcher {
	return &TONFetcher{httpClient: httpClient}
}

type tonBlockRef struct {
	Workchain int32  `json:"workchain"`
	Shard     string `json:"shard"`
	Seqno     uint64 `json:"seqno"`
}

// FetchState implements StateFetcher
func (f *TONFetcher) FetchState(ctx context.Context, endpoint string) (model.ChainState, error) {
	client := NewClient(endpoint, f.httpClient)

	var info struct {
		Last *tonBlockRef `json:"last"`
	}
	if err := client.Call(ctx, "getMasterchainInfo", map[string]any{}, &info); err != nil {
		return model.ChainState{}, fmt.Errorf("getMasterchainInfo: %w", err)
	}
	if info.Last == nil {
		return model.ChainState{}, fmt.Errorf("getMasterchainInfo: missing last block")
	}
	last := *info.Last

	var block struct {
		Transactions []struct {
			Hash string `json:"hash"`
		} `json:"transactions"`
	}
	err := client.Call(ctx, "getBlockTransactions", map[string]any{
		"workchain": last.Workchain,
		"shard":     last.Shard,
		"seqno":     last.Seqno,
		"count":     1,
	}, &block)
	if err != nil {
		return model.ChainState{}, fmt.Errorf("getBlockTransactions: %w", err)
	}
	if len(block.Transactions) == 0 || block.Transactions[0].Hash == "" {
		return model.ChainState{}, fmt.Errorf("no transactions in block %d", last.Seqno)
	}

	id := model.TONBlockID{Workchain: last.Workchain, Shard: last.Shard, Seqno: last.Seqno}
	return model.ChainState{
		BlockNumber: last.Seqno,
		BlockID:     id.String(),
		TxID:        block.Transactions[0].Hash,
	}, nil
}
