package validation

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

func TestFilterSamples(t *testing.T) {
	samples := []model.LatencySample{
		{Provider: "a", Method: "eth_call", Seconds: 0.2, Status: model.StatusSuccess, HTTPStatus: 200},
		{Provider: "b", Method: "eth_call", Status: model.StatusFailed, ErrorClass: "http_429", HTTPStatus: 429},
		{Provider: "c", Method: "eth_call", Status: model.StatusFailed, ErrorClass: "http_403", HTTPStatus: 403},
		{Provider: "d", Method: "eth_call", Seconds: 60, Status: model.StatusSuccess, HTTPStatus: 200},
		{Provider: "e", Method: "eth_getLogs", Status: model.StatusNoData},
		{Provider: "f", Method: "eth_call", Status: model.StatusFailed, ErrorClass: "http_500", HTTPStatus: 500},
	}

	out := FilterSamples(samples, DefaultValidationOptions())
	require.Len(t, out, 4)

	byProvider := make(map[string]model.LatencySample)
	for _, s := range out {
		byProvider[s.Provider] = s
	}

	assert.NotContains(t, byProvider, "b", "429 should be dropped")
	assert.NotContains(t, byProvider, "c", "403 should be dropped")

	assert.Equal(t, model.StatusSuccess, byProvider["a"].Status)
	assert.Equal(t, model.StatusFailed, byProvider["d"].Status)
	assert.Equal(t, "latency_exceeded", byProvider["d"].ErrorClass)
	assert.Zero(t, byProvider["d"].Seconds)
	assert.Equal(t, model.StatusNoData, byProvider["e"].Status)
	assert.Equal(t, model.StatusFailed, byProvider["f"].Status)
}

func TestFilterSamples_NoCap(t *testing.T) {
	samples := []model.LatencySample{{Seconds: 120, Status: model.StatusSuccess}}
	out := FilterSamples(samples, ValidationOptions{MaxLatency: 0})
	require.Len(t, out, 1)
	assert.Equal(t, model.StatusSuccess, out[0].Status)
	assert.Equal(t, 120.0, out[0].Seconds)
}

func TestValidateState(t *testing.T) {
	evmTx := "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
	solSig := solana.Signature{1, 2, 3, 4}.String()

	tests := []struct {
		name    string
		chain   types.Blockchain
		state   model.ChainState
		wantErr string
	}{
		{"evm ok", types.ChainEthereum, model.ChainState{BlockNumber: 100, BlockID: "0x64", TxID: evmTx}, ""},
		{"evm empty block", types.ChainBase, model.ChainState{TxID: evmTx}, "empty block"},
		{"evm empty tx", types.ChainBase, model.ChainState{BlockID: "0x1"}, "empty transaction"},
		{"evm decimal block", types.ChainArbitrum, model.ChainState{BlockID: "100", TxID: evmTx}, "not hex"},
		{"evm short hash", types.ChainBNB, model.ChainState{BlockID: "0x1", TxID: "0xabc"}, "malformed tx hash"},
		{"solana ok", types.ChainSolana, model.ChainState{BlockNumber: 5, BlockID: "5", TxID: solSig}, ""},
		{"solana bad sig", types.ChainSolana, model.ChainState{BlockNumber: 5, BlockID: "5", TxID: "not-base58!"}, "malformed signature"},
		{"ton ok", types.ChainTON, model.ChainState{BlockNumber: 7, BlockID: "-1:8000000000000000:7", TxID: "hash"}, ""},
		{"ton bad id", types.ChainTON, model.ChainState{BlockNumber: 7, BlockID: "7", TxID: "hash"}, "invalid TON block id"},
		{"ton seqno mismatch", types.ChainTON, model.ChainState{BlockNumber: 8, BlockID: "-1:8000000000000000:7", TxID: "hash"}, "does not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateState(tt.chain, tt.state)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
