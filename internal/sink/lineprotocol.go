// Package sink encodes latency samples and delivers them to the metrics backend.
package sink

import (
	"fmt"
	"sort"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/yourorg/rpc-dashboard/internal/model"
)

// Measurement suffixes, prefixed per environment
const (
	LatencyMeasurement = "response_latency_seconds"
	ErrorsMeasurement  = "probe_errors"
)

type tag struct{ key, value string }

// sampleTags returns the latency line tags in lexical key order
func sampleTags(s model.LatencySample) []tag {
	metricType := s.MetricType
	if metricType == "" {
		metricType = model.MetricTypeResponseTime
	}
	return []tag{
		{"api_method", s.Method},
		{"blockchain", s.Blockchain},
		{"metric_type", metricType},
		{"provider", s.Provider},
		{"response_status", string(s.Status)},
		{"source_region", s.SourceRegion},
		{"target_region", s.TargetRegion},
	}
}

type errorKey struct {
	blockchain, provider, sourceRegion string
}

type errorCounts struct {
	failed, noData int64
}

// Encode renders samples as Influx line protocol. no_data samples produce no
// latency line; they are counted on the per-provider probe_errors lines
// together with failures.
func Encode(prefix string, samples []model.LatencySample, now time.Time) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)

	latency := prefix + LatencyMeasurement
	counts := make(map[errorKey]*errorCounts)
	var keys []errorKey

	for _, s := range samples {
		key := errorKey{s.Blockchain, s.Provider, s.SourceRegion}
		c, ok := counts[key]
		if !ok {
			c = &errorCounts{}
			counts[key] = c
			keys = append(keys, key)
		}

		switch s.Status {
		case model.StatusNoData:
			c.noData++
			continue
		case model.StatusFailed:
			c.failed++
		}

		value, ok := lineprotocol.NewValue(s.Seconds)
		if !ok {
			return nil, fmt.Errorf("invalid latency value %v for %s/%s", s.Seconds, s.Provider, s.Method)
		}
		enc.StartLine(latency)
		for _, t := range sampleTags(s) {
			if t.value != "" {
				enc.AddTag(t.key, t.value)
			}
		}
		enc.AddField("value", value)
		enc.EndLine(now)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].blockchain != keys[j].blockchain {
			return keys[i].blockchain < keys[j].blockchain
		}
		if keys[i].provider != keys[j].provider {
			return keys[i].provider < keys[j].provider
		}
		return keys[i].sourceRegion < keys[j].sourceRegion
	})

	errorsName := prefix + ErrorsMeasurement
	for _, key := range keys {
		c := counts[key]
		for _, kind := range []struct {
			metricType string
			count      int64
		}{
			{string(model.StatusFailed), c.failed},
			{string(model.StatusNoData), c.noData},
		} {
			enc.StartLine(errorsName)
			if key.blockchain != "" {
				enc.AddTag("blockchain", key.blockchain)
			}
			enc.AddTag("metric_type", kind.metricType)
			if key.provider != "" {
				enc.AddTag("provider", key.provider)
			}
			if key.sourceRegion != "" {
				enc.AddTag("source_region", key.sourceRegion)
			}
			enc.AddField("value", lineprotocol.IntValue(kind.count))
			enc.EndLine(now)
		}
	}

	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode line protocol: %w", err)
	}
	return enc.Bytes(), nil
}
