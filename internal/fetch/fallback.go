package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/rpc-dashboard/internal/circuitbreaker"
	"github.com/yourorg/rpc-dashboard/internal/config"
	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/otel"
	"github.com/yourorg/rpc-dashboard/internal/types"
	"github.com/yourorg/rpc-dashboard/internal/validation"
)

// ErrNoProviders is returned when a blockchain has no eligible provider
var ErrNoProviders = errors.New("no providers configured")

// StateFetcher reads the latest chain snapshot from a single endpoint
type StateFetcher interface {
	FetchState(ctx context.Context, endpoint string) (model.ChainState, error)
}

// Result is the snapshot accepted by Fetch and the provider that produced it
type Result struct {
	State    model.ChainState
	Provider string
}

// Fetcher walks providers in order until one returns a valid snapshot
type Fetcher struct {
	strategies map[types.Family]StateFetcher
	breakers   *circuitbreaker.Group
	timeout    time.Duration
}

// NewFetcher creates a Fetcher with one strategy per blockchain family.
// breakers may be nil to disable provider skipping.
func NewFetcher(httpClient *http.Client, breakers *circuitbreaker.Group, timeout time.Duration) *Fetcher {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Fetcher{
		strategies: map[types.Family]StateFetcher{
			types.FamilyEVM:    NewEVMFetcher(httpClient),
			types.FamilySolana: NewSolanaFetcher(httpClient),
			types.FamilyTON:    NewTONFetcher(httpClient),
		},
		breakers: breakers,
		timeout:  timeout,
	}
}

// WithStrategy replaces the strategy used for a family
func (f *Fetcher) WithStrategy(family types.Family, s StateFetcher) *Fetcher {
	f.strategies[family] = s
	return f
}

// Fetch returns the snapshot from the first provider that answers within the
// timeout with a valid state. Providers after the winner are not contacted.
func (f *Fetcher) Fetch(ctx context.Context, chain types.Blockchain, providers []config.ProviderConfig) (Result, error) {
	if len(providers) == 0 {
		return Result{}, fmt.Errorf("%s: %w", chain, ErrNoProviders)
	}
	strategy, ok := f.strategies[chain.Family()]
	if !ok {
		return Result{}, fmt.Errorf("%s: no fetch strategy for family %s", chain, chain.Family())
	}

	var errs []error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		breaker := f.breakers.Get(string(chain) + "/" + p.Name)
		if breaker != nil {
			if err := breaker.Allow(); err != nil {
				errs = append(errs, fmt.Errorf("provider %s: %w", p.Name, err))
				continue
			}
		}

		state, err := f.fetchOne(ctx, strategy, chain, p)
		if err != nil {
			if breaker != nil {
				breaker.RecordFailure(err)
			}
			logrus.WithFields(logrus.Fields{
				"blockchain": chain,
				"provider":   p.Name,
			}).Warnf("State fetch failed: %v", err)
			errs = append(errs, fmt.Errorf("provider %s: %w", p.Name, err))
			continue
		}

		if breaker != nil {
			breaker.RecordSuccess()
		}
		return Result{State: state, Provider: p.Name}, nil
	}

	return Result{}, fmt.Errorf("all providers failed for %s: %w", chain, errors.Join(errs...))
}

func (f *Fetcher) fetchOne(ctx context.Context, strategy StateFetcher, chain types.Blockchain, p config.ProviderConfig) (model.ChainState, error) {
	ctx, span := otel.StartSpan(ctx, "fetch.provider",
		"blockchain", string(chain),
		"provider", p.Name,
	)
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	state, err := strategy.FetchState(ctx, p.HTTPEndpoint)
	if err == nil {
		err = validation.ValidateState(chain, state)
	}
	if err != nil {
		otel.RecordError(ctx, err)
		return model.ChainState{}, err
	}
	return state, nil
}
