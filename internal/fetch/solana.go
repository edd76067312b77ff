package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/yourorg/rpc-dashboard/internal/model"
)

// Solana error codes for slots that were skipped or are not yet available
var solanaSkippedSlotCodes = map[int]bool{
	-32004: true,
	-32007: true,
	-32009: true,
}

// SolanaFetcher reads the latest finalized slot and one of its signatures
type SolanaFetcher struct {
	httpClient *http.Client
}

// NewSolanaFetcher creates a Solana state fetcher
func NewSolanaFetcher(httpClient *http.Client) *SolanaFetcher {
	return &SolanaFetcher{httpClient: httpClient}
}

// FetchState implements StateFetcher
func (f *SolanaFetcher) FetchState(ctx context.Context, endpoint string) (model.ChainState, error) {
	client := NewClient(endpoint, f.httpClient)

	var blockhash struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
	}
	if err := client.Call(ctx, "getLatestBlockhash", []any{map[string]string{"commitment": "finalized"}}, &blockhash); err != nil {
		return model.ChainState{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	latest := blockhash.Context.Slot
	if latest == 0 {
		return model.ChainState{}, fmt.Errorf("getLatestBlockhash: missing context slot")
	}

	for i := uint64(0); i <= maxWalkBack && i <= latest; i++ {
		slot := latest - i

		var block *struct {
			Signatures []string `json:"signatures"`
		}
		err := client.Call(ctx, "getBlock", []any{slot, map[string]any{
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
			"transactionDetails":             "signatures",
			"rewards":                        false,
		}}, &block)
		if code, ok := rpcErrorCode(err); ok && solanaSkippedSlotCodes[code] {
			continue
		}
		if err != nil {
			return model.ChainState{}, fmt.Errorf("getBlock(%d): %w", slot, err)
		}
		if block == nil || len(block.Signatures) == 0 {
			continue
		}

		return model.ChainState{
			BlockNumber: latest,
			BlockID:     strconv.FormatUint(latest, 10),
			TxID:        block.Signatures[0],
		}, nil
	}

	return model.ChainState{}, fmt.Errorf("no signatures in slots %d..%d", saturatingSub(latest, maxWalkBack), latest)
}
