package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/rpc-dashboard/internal/circuitbreaker"
	"github.com/yourorg/rpc-dashboard/internal/collect"
	"github.com/yourorg/rpc-dashboard/internal/config"
	"github.com/yourorg/rpc-dashboard/internal/fetch"
	"github.com/yourorg/rpc-dashboard/internal/metrics"
	"github.com/yourorg/rpc-dashboard/internal/otel"
	"github.com/yourorg/rpc-dashboard/internal/probe"
	"github.com/yourorg/rpc-dashboard/internal/schedule"
	"github.com/yourorg/rpc-dashboard/internal/security"
	"github.com/yourorg/rpc-dashboard/internal/sink"
	"github.com/yourorg/rpc-dashboard/internal/state"
	"github.com/yourorg/rpc-dashboard/internal/types"
	"github.com/yourorg/rpc-dashboard/internal/updater"
	"github.com/yourorg/rpc-dashboard/internal/validation"
)

// app holds the wired components shared by every command
type app struct {
	cfg       config.Config
	endpoints *config.Endpoints

	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	breakers  *circuitbreaker.Group
	updater   *updater.Updater
	collector *collect.Collector
	exporter  *sink.Exporter
	auth      *security.Authorizer
	scheduler *schedule.Scheduler

	closers []func()
}

type appOption func(*collect.Options)

func withDryRun(dryRun bool) appOption {
	return func(o *collect.Options) { o.DryRun = dryRun }
}

// newApp loads configuration and wires every component. Configuration errors
// are returned before any network activity.
func newApp(ctx context.Context, opts ...appOption) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	endpoints, err := config.LoadEndpoints(cfg.Endpoints, cfg.EndpointsFile)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		endpoints: endpoints,
		registry:  prometheus.NewRegistry(),
	}
	a.registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)
	a.closers = append(a.closers, otel.InitTracer(ctx, cfg.OtelEndpoint))

	a.breakers = circuitbreaker.NewGroup(
		circuitbreaker.Thresholds{
			MaxFailures:      cfg.BreakerMaxFailures,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
		},
		cfg.BreakerResetDelay,
		func(name string, from, to circuitbreaker.State) {
			a.metrics.SetBreakerState(name, int(to))
		},
	)

	var rdb *redis.Client
	if cfg.StateBackend == config.BackendRedis || cfg.UpdateLock {
		rdb, err = state.NewRedisClient(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	store, err := newStore(cfg, rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker updater.Locker
	if cfg.UpdateLock {
		locker = state.NewLease(rdb, cfg.StateNamespace(), cfg.UpdateLockTTL)
	}

	chains, err := parseChains(cfg.StateChains)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := fetch.NewFetcher(fetch.NewHTTPClient(), a.breakers, cfg.FetchTimeout)
	a.updater = updater.New(endpoints, fetcher, store, locker, a.metrics, updater.Options{
		Region:    cfg.Region,
		Regions:   cfg.UpdateRegions,
		Providers: cfg.UpdateProviders,
		Chains:    chains,
	})

	a.exporter = sink.NewExporter(sink.Config{
		URL:          cfg.GrafanaURL,
		User:         cfg.GrafanaUser,
		APIKey:       cfg.GrafanaAPIKey,
		Prefix:       cfg.MetricPrefix(),
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	}, a.metrics)
	a.closers = append(a.closers, func() {
		if err := a.exporter.Close(); err != nil {
			logrus.Warnf("Exporter close: %v", err)
		}
	})

	collectOpts := collect.Options{
		Region:      cfg.Region,
		Concurrency: cfg.ProbeConcurrency,
		Validation:  validation.DefaultValidationOptions(),
	}
	collectOpts.Validation.MaxLatency = cfg.MaxLatency
	for _, opt := range opts {
		opt(&collectOpts)
	}
	a.collector = collect.New(endpoints, store, probe.NewRunner(cfg.ProbeTimeout), a.exporter, a.metrics, collectOpts)

	a.auth = security.NewAuthorizer(cfg.CronSecret, cfg.SkipAuth && !cfg.IsProduction())

	logrus.WithFields(logrus.Fields{
		"environment":   cfg.Environment,
		"region":        cfg.Region,
		"state_backend": cfg.StateBackend,
		"blockchains":   len(endpoints.Blockchains()),
		"providers":     len(endpoints.Providers),
	}).Info("Application initialized")

	return a, nil
}

// newStore picks the state backend
func newStore(cfg config.Config, rdb *redis.Client) (state.Store, error) {
	switch cfg.StateBackend {
	case config.BackendBlob:
		return state.NewBlobStore(state.BlobConfig{
			BaseURL:   cfg.BlobBaseURL,
			StoreID:   cfg.BlobStoreID,
			Token:     cfg.BlobToken,
			Namespace: cfg.StateNamespace(),
		}), nil
	case config.BackendRedis:
		return state.NewRedisStore(rdb, cfg.StateNamespace(), cfg.StateTTL), nil
	case config.BackendMemory:
		logrus.Warn("Using in-memory state store, snapshots are lost on restart")
		return state.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

func parseChains(names []string) ([]types.Blockchain, error) {
	out := make([]types.Blockchain, 0, len(names))
	for _, name := range names {
		chain, err := types.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("STATE_CHAINS: %w", err)
		}
		out = append(out, chain)
	}
	return out, nil
}

// startScheduler registers one collection job per blockchain plus the
// refresh job, then starts firing them
func (a *app) startScheduler() error {
	s := schedule.New(len(a.endpoints.Blockchains()) + 1)

	for _, chain := range a.endpoints.Blockchains() {
		if err := s.Register(schedule.Job{
			Name:    "collect:" + chain.String(),
			Spec:    a.cfg.CollectSchedule,
			Timeout: a.cfg.PassTimeout,
			Run: func(ctx context.Context) error {
				_, err := a.collector.Run(ctx, chain)
				return err
			},
		}); err != nil {
			return err
		}
	}

	if err := s.Register(schedule.Job{
		Name:    "update-state",
		Spec:    a.cfg.UpdateSchedule,
		Timeout: a.cfg.PassTimeout,
		Run: func(ctx context.Context) error {
			_, err := a.updater.Run(ctx)
			return err
		},
	}); err != nil {
		return err
	}

	s.Start()
	a.scheduler = s

	// Refresh right away so the first collection ticks have state to read
	if a.cfg.UpdateOnStart {
		return s.Trigger("update-state")
	}
	return nil
}

// Close stops the scheduler and releases clients in reverse order
func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
