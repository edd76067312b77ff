// Package aggregate summarizes the samples of one collection pass.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/yourorg/rpc-dashboard/internal/model"
)

// Summary describes one pass
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	NoData    int `json:"no_data"`

	// MedianSeconds is the median latency over successful samples
	MedianSeconds float64 `json:"median_seconds"`

	// FailuresByProvider counts failed samples per provider
	FailuresByProvider map[string]int `json:"failures_by_provider,omitempty"`

	// FailedEntities lists provider/method pairs that failed, sorted
	FailedEntities []string `json:"failed_entities,omitempty"`
}

// SuccessRate returns the share of successful samples among measured ones
func (s Summary) SuccessRate() float64 {
	measured := s.Succeeded + s.Failed
	if measured == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(measured)
}

// Summarize counts outcomes and computes the median success latency
func Summarize(samples []model.LatencySample) Summary {
	summary := Summary{Total: len(samples)}
	latencies := make([]float64, 0, len(samples))

	for _, s := range samples {
		switch s.Status {
		case model.StatusSuccess:
			summary.Succeeded++
			latencies = append(latencies, s.Seconds)
		case model.StatusNoData:
			summary.NoData++
		default:
			summary.Failed++
			if summary.FailuresByProvider == nil {
				summary.FailuresByProvider = make(map[string]int)
			}
			summary.FailuresByProvider[s.Provider]++
			summary.FailedEntities = append(summary.FailedEntities,
				fmt.Sprintf("%s/%s (%s)", s.Provider, s.Method, s.ErrorClass))
		}
	}

	sort.Strings(summary.FailedEntities)
	summary.MedianSeconds = Median(latencies)
	return summary
}

// Median returns the median of values, 0 for an empty slice. The input is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
