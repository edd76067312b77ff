package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/yourorg/rpc-dashboard/internal/model"
)

// maxWalkBack bounds how many earlier blocks or slots are searched for a transaction
const maxWalkBack = 5

// EVMFetcher reads the latest block and a recent transaction from an EVM node
type EVMFetcher struct {
	httpClient *http.Client
}

// NewEVMFetcher creates an EVM state fetcher
func NewEVMFetcher(httpClient *http.Client) *EVMFetcher {
	return &EVMFetcher{httpClient: httpClient}
}

type evmBlock struct {
	Number       hexutil.Uint64    `json:"number"`
	Transactions []json.RawMessage `json:"transactions"`
}

// FetchState implements StateFetcher
func (f *EVMFetcher) FetchState(ctx context.Context, endpoint string) (model.ChainState, error) {
	rpcClient, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(f.httpClient))
	if err != nil {
		return model.ChainState{}, fmt.Errorf("failed to dial: %w", err)
	}
	defer rpcClient.Close()

	latest, err := ethclient.NewClient(rpcClient).BlockNumber(ctx)
	if err != nil {
		return model.ChainState{}, fmt.Errorf("eth_blockNumber: %w", err)
	}

	for i := uint64(0); i <= maxWalkBack && i <= latest; i++ {
		number := latest - i

		var block *evmBlock
		err := rpcClient.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
		if err != nil {
			return model.ChainState{}, fmt.Errorf("eth_getBlockByNumber(%d): %w", number, err)
		}
		if block == nil {
			continue
		}

		if tx := firstEVMTx(block.Transactions); tx != "" {
			return model.ChainState{
				BlockNumber: latest,
				BlockID:     hexutil.EncodeUint64(latest),
				TxID:        tx,
			}, nil
		}
	}

	return model.ChainState{}, fmt.Errorf("no transactions in blocks %d..%d", saturatingSub(latest, maxWalkBack), latest)
}

// firstEVMTx accepts both hash-only and full transaction objects
func firstEVMTx(txs []json.RawMessage) string {
	if len(txs) == 0 {
		return ""
	}
	var hash string
	if err := json.Unmarshal(txs[0], &hash); err == nil {
		return hash
	}
	var obj struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(txs[0], &obj); err == nil {
		return obj.Hash
	}
	return ""
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
