package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTONBlockID(t *testing.T) {
	id, err := ParseTONBlockID("-1:8000000000000000:41234567")
	require.NoError(t, err)
	assert.Equal(t, int32(-1), id.Workchain)
	assert.Equal(t, "8000000000000000", id.Shard)
	assert.Equal(t, uint64(41234567), id.Seqno)
	assert.Equal(t, "-1:8000000000000000:41234567", id.String())
}

func TestParseTONBlockID_Invalid(t *testing.T) {
	for _, input := range []string{"", "1:2", "x:8000:1", "-1::5", "-1:8000:abc"} {
		_, err := ParseTONBlockID(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestLatencySample_Fail(t *testing.T) {
	s := LatencySample{Seconds: 1.5, Status: StatusSuccess}
	s.Fail("timeout")
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "timeout", s.ErrorClass)
	assert.Zero(t, s.Seconds)
	assert.False(t, s.Success())
}

func TestChainState_IsZero(t *testing.T) {
	assert.True(t, ChainState{}.IsZero())
	assert.False(t, ChainState{TxID: "0xabc"}.IsZero())
}
