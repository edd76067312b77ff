// Package updater refreshes the stored chain snapshot for each configured blockchain.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/yourorg/rpc-dashboard/internal/config"
	"github.com/yourorg/rpc-dashboard/internal/fetch"
	"github.com/yourorg/rpc-dashboard/internal/metrics"
	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/otel"
	"github.com/yourorg/rpc-dashboard/internal/state"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// Failure classes
const (
	ClassConfig = "config"
	ClassFetch  = "fetch"
	ClassStore  = "store"
)

// Fetcher returns the latest snapshot for chain from the first healthy provider
type Fetcher interface {
	Fetch(ctx context.Context, chain types.Blockchain, providers []config.ProviderConfig) (fetch.Result, error)
}

// Locker guards a pass against concurrent writers
type Locker interface {
	TryAcquire(ctx context.Context) (string, error)
	Release(ctx context.Context, token string) error
}

// Options controls which chains and providers a pass touches
type Options struct {
	// Region is the source region of this instance
	Region string

	// Regions allowed to run refresh passes
	Regions []string

	// Providers allow-list by name, empty allows all
	Providers []string

	// Chains to refresh, empty means every blockchain in the endpoints document
	Chains []types.Blockchain

	// Concurrency bounds parallel chain refreshes
	Concurrency int
}

// Failure describes one chain that was not refreshed
type Failure struct {
	Blockchain types.Blockchain `json:"blockchain"`
	Class      string           `json:"class"`
	Message    string           `json:"message"`
}

// Result summarizes one refresh pass
type Result struct {
	Skipped    bool               `json:"skipped"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Succeeded  []types.Blockchain `json:"succeeded"`
	Failures   []Failure          `json:"failures"`
	Total      int                `json:"total"`
	Duration   time.Duration      `json:"duration"`
}

// Updater runs state refresh passes
type Updater struct {
	endpoints *config.Endpoints
	fetcher   Fetcher
	store     state.Store
	locker    Locker
	metrics   *metrics.Metrics
	opts      Options
}

// New creates an Updater. locker and m may be nil.
func New(endpoints *config.Endpoints, fetcher Fetcher, store state.Store, locker Locker, m *metrics.Metrics, opts Options) *Updater {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Updater{
		endpoints: endpoints,
		fetcher:   fetcher,
		store:     store,
		locker:    locker,
		metrics:   m,
		opts:      opts,
	}
}

type chainOutcome struct {
	chain types.Blockchain
	class string
	err   error
	state model.ChainState
}

// Run refreshes every configured chain. Per-chain failures are reported in
// the Result; only a lease backend error fails the pass itself.
func (u *Updater) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, "updater.run", "region", u.opts.Region)
	defer span.End()

	if !u.regionAllowed() {
		logrus.WithField("region", u.opts.Region).Info("State update skipped: region not enabled")
		return Result{Skipped: true, SkipReason: fmt.Sprintf("region %s not enabled", u.opts.Region)}, nil
	}

	if u.locker != nil {
		token, err := u.locker.TryAcquire(ctx)
		if err != nil {
			otel.RecordError(ctx, err)
			return Result{}, err
		}
		if token == "" {
			logrus.Info("State update skipped: another pass holds the lease")
			return Result{Skipped: true, SkipReason: "lease held by another pass"}, nil
		}
		defer func() {
			if err := u.locker.Release(context.WithoutCancel(ctx), token); err != nil {
				logrus.Warnf("Failed to release state update lease: %v", err)
			}
		}()
	}

	chains := u.chains()
	p := pool.NewWithResults[chainOutcome]().WithMaxGoroutines(u.opts.Concurrency)
	for _, chain := range chains {
		p.Go(func() chainOutcome {
			return u.refresh(ctx, chain)
		})
	}
	outcomes := p.Wait()

	res := Result{Total: len(chains), Succeeded: []types.Blockchain{}, Failures: []Failure{}}
	for _, o := range outcomes {
		if o.err == nil {
			res.Succeeded = append(res.Succeeded, o.chain)
			u.metrics.RecordStateRefresh(string(o.chain), "success")
			u.metrics.SetStateBlock(string(o.chain), o.state.BlockNumber)
			continue
		}
		res.Failures = append(res.Failures, Failure{Blockchain: o.chain, Class: o.class, Message: o.err.Error()})
		u.metrics.RecordStateRefresh(string(o.chain), o.class)
	}
	sort.Slice(res.Succeeded, func(i, j int) bool { return res.Succeeded[i] < res.Succeeded[j] })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Blockchain < res.Failures[j].Blockchain })

	res.Duration = time.Since(start)
	u.metrics.ObservePass("update", res.Duration)

	logrus.WithFields(logrus.Fields{
		"succeeded": len(res.Succeeded),
		"failed":    len(res.Failures),
		"duration":  res.Duration,
	}).Infof("Updated state for %d/%d chains", len(res.Succeeded), res.Total)

	return res, nil
}

func (u *Updater) refresh(ctx context.Context, chain types.Blockchain) chainOutcome {
	log := logrus.WithField("blockchain", chain)

	providers := u.eligibleProviders(chain)
	if len(providers) == 0 {
		err := fmt.Errorf("%s: %w", chain, fetch.ErrNoProviders)
		log.Warn("State update failed: no eligible providers")
		return chainOutcome{chain: chain, class: ClassConfig, err: err}
	}

	res, err := u.fetcher.Fetch(ctx, chain, providers)
	if err != nil {
		class := ClassFetch
		if errors.Is(err, fetch.ErrNoProviders) {
			class = ClassConfig
		}
		log.Errorf("State update failed: %v", err)
		return chainOutcome{chain: chain, class: class, err: err}
	}

	if err := u.store.Put(ctx, chain, res.State); err != nil {
		log.Errorf("State update failed: %v", err)
		return chainOutcome{chain: chain, class: ClassStore, err: err}
	}

	log.WithFields(logrus.Fields{
		"provider":     res.Provider,
		"block_number": res.State.BlockNumber,
	}).Info("State updated")
	return chainOutcome{chain: chain, state: res.State}
}

func (u *Updater) regionAllowed() bool {
	if len(u.opts.Regions) == 0 {
		return true
	}
	for _, r := range u.opts.Regions {
		if strings.EqualFold(strings.TrimSpace(r), u.opts.Region) {
			return true
		}
	}
	return false
}

func (u *Updater) chains() []types.Blockchain {
	if len(u.opts.Chains) > 0 {
		return u.opts.Chains
	}
	return u.endpoints.Blockchains()
}

// eligibleProviders applies the allow-list while keeping configured order
func (u *Updater) eligibleProviders(chain types.Blockchain) []config.ProviderConfig {
	all := u.endpoints.ProvidersFor(chain)
	if len(u.opts.Providers) == 0 {
		return all
	}

	allowed := make(map[string]bool, len(u.opts.Providers))
	for _, name := range u.opts.Providers {
		allowed[strings.ToLower(strings.TrimSpace(name))] = true
	}

	var out []config.ProviderConfig
	for _, p := range all {
		if allowed[strings.ToLower(p.Name)] {
			out = append(out, p)
		}
	}
	return out
}
