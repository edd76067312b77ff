package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

func TestDeriveRange(t *testing.T) {
	tests := []struct {
		name    string
		latest  uint64
		offsets types.Offsets
		want    BlockRange
	}{
		{"regular", 10_000_000, types.Offsets{Low: 7200, High: 10000}, BlockRange{From: 9_990_000, To: 9_992_800}},
		{"below both offsets", 5000, types.Offsets{Low: 7200, High: 10000}, BlockRange{From: 0, To: 0}},
		{"between offsets", 8000, types.Offsets{Low: 7200, High: 10000}, BlockRange{From: 0, To: 800}},
		{"zero offsets", 42, types.Offsets{}, BlockRange{From: 42, To: 42}},
		{"genesis", 0, types.ChainEthereum.DefaultOffsets(), BlockRange{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveRange(tt.latest, tt.offsets)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got.From, got.To)
		})
	}
}

func TestNewInput_ColdStart(t *testing.T) {
	in := NewInput(nil, types.ChainEthereum.DefaultOffsets(), nil)
	assert.Nil(t, in.State)
	assert.False(t, in.HasState())
}

func TestNewInput_PicksInsideRange(t *testing.T) {
	state := &model.ChainState{BlockNumber: 10_000_000, BlockID: "0x989680", TxID: "0xabc"}
	offsets := types.Offsets{Low: 7200, High: 10000}

	var seenN uint64
	low := NewInput(state, offsets, func(n uint64) uint64 { seenN = n; return 0 })
	high := NewInput(state, offsets, func(n uint64) uint64 { return n - 1 })

	assert.Equal(t, uint64(2801), seenN)
	assert.Equal(t, uint64(9_990_000), low.Historical)
	assert.Equal(t, uint64(9_992_800), high.Historical)
	require.NotNil(t, low.State)
	assert.Equal(t, "0x989680", low.State.BlockID)

	for i := 0; i < 100; i++ {
		in := NewInput(state, offsets, nil)
		assert.GreaterOrEqual(t, in.Historical, in.Range.From)
		assert.LessOrEqual(t, in.Historical, in.Range.To)
	}
}

func TestNewInput_CopiesState(t *testing.T) {
	state := &model.ChainState{BlockNumber: 100, BlockID: "0x64", TxID: "0xabc"}
	in := NewInput(state, types.Offsets{}, nil)

	state.TxID = "0xdef"
	assert.Equal(t, "0xabc", in.State.TxID)
}
