// Package probe derives request parameters from stored chain state and
// measures the latency of individual RPC calls.
package probe

import (
	"math/rand/v2"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// BlockRange is an inclusive block window behind the latest block
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// DeriveRange returns [latest-high, latest-low], each bound clamped at 0
func DeriveRange(latest uint64, offsets types.Offsets) BlockRange {
	return BlockRange{
		From: clampSub(latest, offsets.High),
		To:   clampSub(latest, offsets.Low),
	}
}

func clampSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Input is what a params builder sees. It is derived once per pass and
// shared read-only by every probe of that pass.
type Input struct {
	// State is nil on a cold start
	State *model.ChainState

	Range BlockRange

	// Historical is a block picked inside Range
	Historical uint64
}

// HasState reports whether a snapshot was available
func (in Input) HasState() bool {
	return in.State != nil
}

// NewInput derives the probe input from a snapshot. pick returns a value in
// [0, n); nil picks uniformly at random so repeated passes spread across the
// range instead of hitting the same cached block.
func NewInput(state *model.ChainState, offsets types.Offsets, pick func(n uint64) uint64) Input {
	if state == nil {
		return Input{}
	}
	if pick == nil {
		pick = rand.Uint64N
	}

	snapshot := *state
	r := DeriveRange(snapshot.BlockNumber, offsets)
	return Input{
		State:      &snapshot,
		Range:      r,
		Historical: r.From + pick(r.To-r.From+1),
	}
}
