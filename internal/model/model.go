// Package model defines the core data structures for the rpc-dashboard.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChainState is the persisted snapshot for one blockchain. It is overwritten
// wholesale on every successful refresh and is read-only for probes.
type ChainState struct {
	// BlockNumber is the latest observed block number or slot
	BlockNumber uint64 `json:"block_number"`

	// BlockID is the family-native reference of the latest block:
	// hex number for EVM, decimal slot for Solana, wc:shard:seqno for TON
	BlockID string `json:"block"`

	// TxID is a recent transaction hash or signature
	TxID string `json:"tx"`
}

// IsZero reports whether the state carries no data at all
func (s ChainState) IsZero() bool {
	return s.BlockNumber == 0 && s.BlockID == "" && s.TxID == ""
}

// TONBlockID identifies a TON block
type TONBlockID struct {
	Workchain int32
	Shard     string
	Seqno     uint64
}

// String formats the id as wc:shard:seqno
func (id TONBlockID) String() string {
	return fmt.Sprintf("%d:%s:%d", id.Workchain, id.Shard, id.Seqno)
}

// ParseTONBlockID splits a wc:shard:seqno reference
func ParseTONBlockID(s string) (TONBlockID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return TONBlockID{}, fmt.Errorf("invalid TON block id %q", s)
	}
	wc, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return TONBlockID{}, fmt.Errorf("invalid TON workchain in %q: %w", s, err)
	}
	if parts[1] == "" {
		return TONBlockID{}, fmt.Errorf("empty TON shard in %q", s)
	}
	seqno, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return TONBlockID{}, fmt.Errorf("invalid TON seqno in %q: %w", s, err)
	}
	return TONBlockID{Workchain: int32(wc), Shard: parts[1], Seqno: seqno}, nil
}

// Status is the outcome of a single probe
type Status string

// Probe outcomes
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusNoData  Status = "no_data"
)

// MetricTypeResponseTime is the default metric_type tag
const MetricTypeResponseTime = "response_time"

// LatencySample is one measured probe. It is never persisted.
type LatencySample struct {
	Blockchain   string  `json:"blockchain"`
	Provider     string  `json:"provider"`
	Method       string  `json:"api_method"`
	SourceRegion string  `json:"source_region"`
	TargetRegion string  `json:"target_region"`
	MetricType   string  `json:"metric_type"`
	Seconds      float64 `json:"value"`
	Status       Status  `json:"response_status"`

	// ErrorClass is set for failed and no_data samples
	ErrorClass string `json:"error_class,omitempty"`

	// HTTPStatus is the last HTTP status seen, 0 if none
	HTTPStatus int `json:"http_status,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Success reports whether the probe succeeded
func (s LatencySample) Success() bool {
	return s.Status == StatusSuccess
}

// Fail marks the sample failed and zeroes its value
func (s *LatencySample) Fail(class string) {
	s.Status = StatusFailed
	s.ErrorClass = class
	s.Seconds = 0
}
