package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_CaseInsensitive(t *testing.T) {
	tests := []struct {
		input string
		want  Blockchain
	}{
		{"Ethereum", ChainEthereum},
		{"ETHEREUM", ChainEthereum},
		{" solana ", ChainSolana},
		{"TON", ChainTON},
		{"bnbsc", ChainBNB},
		{"BSC", ChainBNB},
		{"Hyperliquid", ChainHyperliquid},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	_, err := Parse("dogechain")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedBlockchain)
	assert.Contains(t, err.Error(), "dogechain")
}

func TestFamilyClassification(t *testing.T) {
	for _, chain := range Supported() {
		switch chain {
		case ChainSolana:
			assert.Equal(t, FamilySolana, chain.Family())
		case ChainTON:
			assert.Equal(t, FamilyTON, chain.Family())
		default:
			assert.Equal(t, FamilyEVM, chain.Family(), "chain %s should be EVM", chain)
		}
	}
}

func TestDefaultOffsets(t *testing.T) {
	assert.Equal(t, Offsets{Low: 7200, High: 14400}, ChainEthereum.DefaultOffsets())
	assert.Equal(t, Offsets{Low: 432000, High: 648000}, ChainSolana.DefaultOffsets())
	assert.Equal(t, Offsets{Low: 1555200, High: 1572480}, ChainTON.DefaultOffsets())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ethereum", ChainEthereum.DisplayName())
	assert.Equal(t, "TON", ChainTON.DisplayName())
	assert.Equal(t, "unknown", Blockchain("unknown").DisplayName())
}
