// Package collect runs metric collection passes: read state, probe every
// provider, filter, summarize and export.
package collect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/yourorg/rpc-dashboard/internal/aggregate"
	"github.com/yourorg/rpc-dashboard/internal/config"
	"github.com/yourorg/rpc-dashboard/internal/fetch"
	"github.com/yourorg/rpc-dashboard/internal/metrics"
	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/otel"
	"github.com/yourorg/rpc-dashboard/internal/probe"
	"github.com/yourorg/rpc-dashboard/internal/state"
	"github.com/yourorg/rpc-dashboard/internal/types"
	"github.com/yourorg/rpc-dashboard/internal/validation"
)

// exportTimeout bounds delivery after the pass deadline may have passed
const exportTimeout = 15 * time.Second

// StateReader reads the stored snapshot
type StateReader interface {
	Get(ctx context.Context, chain types.Blockchain) (model.ChainState, error)
}

// Runner measures one probe
type Runner interface {
	Run(ctx context.Context, target probe.Target, p probe.Probe, in probe.Input) model.LatencySample
}

// Exporter encodes and delivers samples
type Exporter interface {
	Encode(samples []model.LatencySample) ([]byte, error)
	Export(ctx context.Context, samples []model.LatencySample) error
}

// Options tunes a collector
type Options struct {
	// Region is the source region of this instance
	Region string

	// Concurrency bounds in-flight probes per pass
	Concurrency int

	Validation validation.ValidationOptions

	// DryRun encodes but does not export
	DryRun bool
}

// Report describes one collection pass
type Report struct {
	Blockchain types.Blockchain `json:"blockchain"`
	Skipped    bool             `json:"skipped"`
	SkipReason string           `json:"skip_reason,omitempty"`

	// ColdStart is set when no snapshot was available
	ColdStart bool `json:"cold_start"`

	// Degraded is set when the state store could not be read
	Degraded bool `json:"degraded"`

	Summary     aggregate.Summary `json:"summary"`
	SuccessRate float64           `json:"success_rate"`
	ExportError string            `json:"export_error,omitempty"`
	Duration    time.Duration     `json:"duration"`

	Samples []model.LatencySample `json:"-"`
	Lines   []byte                `json:"-"`
}

// Collector runs collection passes
type Collector struct {
	endpoints *config.Endpoints
	store     StateReader
	runner    Runner
	exporter  Exporter
	metrics   *metrics.Metrics
	opts      Options
}

// New creates a Collector. m may be nil.
func New(endpoints *config.Endpoints, store StateReader, runner Runner, exporter Exporter, m *metrics.Metrics, opts Options) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	return &Collector{
		endpoints: endpoints,
		store:     store,
		runner:    runner,
		exporter:  exporter,
		metrics:   m,
		opts:      opts,
	}
}

// Run executes one pass for chain. Only configuration errors fail the pass;
// probe failures become samples and export failures are reported.
func (c *Collector) Run(ctx context.Context, chain types.Blockchain) (*Report, error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, "collect.run", "blockchain", string(chain), "region", c.opts.Region)
	defer span.End()

	log := logrus.WithField("blockchain", chain)
	report := &Report{Blockchain: chain}

	providers := c.endpoints.ProvidersFor(chain)
	if len(providers) == 0 {
		err := fmt.Errorf("%s: %w", chain, fetch.ErrNoProviders)
		otel.RecordError(ctx, err)
		return nil, err
	}

	if !c.endpoints.RegionAllowed(chain, c.opts.Region) {
		log.WithField("region", c.opts.Region).Info("Collection skipped: region not enabled")
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("region %s not enabled for %s", c.opts.Region, chain)
		return report, nil
	}

	input := c.input(ctx, chain, report)

	samples := c.probeAll(ctx, chain, providers, input)
	samples = validation.FilterSamples(samples, c.opts.Validation)
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].Provider != samples[j].Provider {
			return samples[i].Provider < samples[j].Provider
		}
		return samples[i].Method < samples[j].Method
	})

	for _, s := range samples {
		c.metrics.ObserveProbe(string(chain), s.Provider, s.Method, string(s.Status), s.Seconds)
	}

	report.Samples = samples
	report.Summary = aggregate.Summarize(samples)
	report.SuccessRate = report.Summary.SuccessRate()

	if c.opts.DryRun {
		lines, err := c.exporter.Encode(samples)
		if err != nil {
			report.ExportError = err.Error()
		}
		report.Lines = lines
	} else {
		exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
		if err := c.exporter.Export(exportCtx, samples); err != nil {
			log.Errorf("Failed to export metrics: %v", err)
			report.ExportError = err.Error()
		}
		cancel()
	}

	report.Duration = time.Since(start)
	c.metrics.ObservePass("collect", report.Duration)

	log.WithFields(logrus.Fields{
		"succeeded":  report.Summary.Succeeded,
		"failed":     report.Summary.Failed,
		"no_data":    report.Summary.NoData,
		"success":    report.SuccessRate,
		"median":     report.Summary.MedianSeconds,
		"cold_start": report.ColdStart,
		"duration":   report.Duration,
	}).Infof("Collected %d samples from %d providers", report.Summary.Total, len(providers))

	return report, nil
}

// input reads state once per pass. A miss or an unreadable store yields a cold start.
func (c *Collector) input(ctx context.Context, chain types.Blockchain, report *Report) probe.Input {
	st, err := c.store.Get(ctx, chain)
	switch {
	case err == nil && !st.IsZero():
		return probe.NewInput(&st, c.endpoints.OffsetsFor(chain), nil)
	case err == nil:
		logrus.WithField("blockchain", chain).Warn("Stored state is empty, running stateless probes only")
	case errors.Is(err, state.ErrNotFound):
		logrus.WithField("blockchain", chain).Info("No stored state, running stateless probes only")
	default:
		logrus.WithField("blockchain", chain).Warnf("State store unavailable, degrading to cold start: %v", err)
		report.Degraded = true
	}
	report.ColdStart = true
	return probe.NewInput(nil, c.endpoints.OffsetsFor(chain), nil)
}

func (c *Collector) probeAll(ctx context.Context, chain types.Blockchain, providers []config.ProviderConfig, in probe.Input) []model.LatencySample {
	catalog := probe.Catalog(chain)
	p := pool.NewWithResults[model.LatencySample]().WithMaxGoroutines(c.opts.Concurrency)

	for _, provider := range providers {
		target := probe.Target{
			Blockchain:        chain,
			Provider:          provider.Name,
			HTTPEndpoint:      provider.HTTPEndpoint,
			WebSocketEndpoint: provider.WebSocketEndpoint,
			SourceRegion:      c.opts.Region,
			TargetRegion:      c.endpoints.TargetRegion(provider),
		}
		for _, pr := range catalog {
			if pr.Kind == probe.KindWebSocket && !provider.SupportsWebSocket() {
				continue
			}
			p.Go(func() model.LatencySample {
				return c.runner.Run(ctx, target, pr, in)
			})
		}
	}
	return p.Wait()
}
