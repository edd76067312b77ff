// Package validation provides filtering and validation for latency samples and chain state.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// ValidationOptions holds configuration for sample filtering
type ValidationOptions struct {
	// MaxLatency caps a successful sample; slower ones are marked failed
	MaxLatency time.Duration

	// IgnoredStatuses are HTTP statuses whose samples are dropped entirely
	IgnoredStatuses []int
}

// DefaultValidationOptions returns the production defaults
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxLatency:      55 * time.Second,
		IgnoredStatuses: []int{403, 429},
	}
}

// FilterSamples drops samples with ignored HTTP statuses and fails samples over MaxLatency
func FilterSamples(samples []model.LatencySample, opts ValidationOptions) []model.LatencySample {
	ignored := make(map[int]bool, len(opts.IgnoredStatuses))
	for _, code := range opts.IgnoredStatuses {
		ignored[code] = true
	}

	out := make([]model.LatencySample, 0, len(samples))
	dropped := 0
	for _, s := range samples {
		if s.HTTPStatus != 0 && ignored[s.HTTPStatus] {
			dropped++
			logrus.WithFields(logrus.Fields{
				"blockchain":  s.Blockchain,
				"provider":    s.Provider,
				"api_method":  s.Method,
				"http_status": s.HTTPStatus,
			}).Debug("Dropped sample with ignored status")
			continue
		}
		if s.Success() && opts.MaxLatency > 0 && s.Seconds > opts.MaxLatency.Seconds() {
			s.Fail("latency_exceeded")
		}
		out = append(out, s)
	}

	if dropped > 0 {
		logrus.WithFields(logrus.Fields{
			"total":   len(samples),
			"dropped": dropped,
		}).Debug("Sample filtering complete")
	}
	return out
}

// ValidateState applies the family-specific checks a fetched snapshot must pass
func ValidateState(chain types.Blockchain, s model.ChainState) error {
	if s.BlockID == "" {
		return fmt.Errorf("%s state: empty block reference", chain)
	}
	if s.TxID == "" {
		return fmt.Errorf("%s state: empty transaction id", chain)
	}

	switch chain.Family() {
	case types.FamilyEVM:
		if !strings.HasPrefix(s.BlockID, "0x") {
			return fmt.Errorf("%s state: block %q is not hex", chain, s.BlockID)
		}
		if !strings.HasPrefix(s.TxID, "0x") || len(s.TxID) != 66 {
			return fmt.Errorf("%s state: malformed tx hash %q", chain, s.TxID)
		}
	case types.FamilySolana:
		if _, err := solana.SignatureFromBase58(s.TxID); err != nil {
			return fmt.Errorf("%s state: malformed signature: %w", chain, err)
		}
	case types.FamilyTON:
		id, err := model.ParseTONBlockID(s.BlockID)
		if err != nil {
			return fmt.Errorf("%s state: %w", chain, err)
		}
		if id.Seqno != s.BlockNumber {
			return fmt.Errorf("%s state: seqno %d does not match block number %d", chain, id.Seqno, s.BlockNumber)
		}
	}
	return nil
}
