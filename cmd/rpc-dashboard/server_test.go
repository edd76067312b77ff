package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/yourorg/rpc-dashboard/internal/circuitbreaker"
	"github.com/yourorg/rpc-dashboard/internal/collect"
	"github.com/yourorg/rpc-dashboard/internal/config"
	"github.com/yourorg/rpc-dashboard/internal/fetch"
	"github.com/yourorg/rpc-dashboard/internal/metrics"
	"github.com/yourorg/rpc-dashboard/internal/security"
	"github.com/yourorg/rpc-dashboard/internal/types"
	"github.com/yourorg/rpc-dashboard/internal/updater"
)

type fakeRefresher struct {
	calls    int
	deadline bool
	err      error
}

func (f *fakeRefresher) Run(ctx context.Context) (updater.Result, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return updater.Result{}, f.err
	}
	return updater.Result{Succeeded: []types.Blockchain{types.ChainEthereum}, Total: 1}, nil
}

type fakeCollector struct {
	chains []types.Blockchain
}

func (f *fakeCollector) Run(_ context.Context, chain types.Blockchain) (*collect.Report, error) {
	f.chains = append(f.chains, chain)
	if chain == types.ChainSolana {
		return nil, fmt.Errorf("%s: %w", chain, fetch.ErrNoProviders)
	}
	return &collect.Report{Blockchain: chain, ColdStart: true}, nil
}

func newTestServer(t *testing.T, limit rate.Limit, burst int) (*Server, *fakeRefresher, *fakeCollector) {
	endpoints, err := config.ParseEndpoints([]byte(`{"providers": [
		{"blockchain": "ethereum", "name": "Alchemy", "http_endpoint": "https://eth.example.com"}
	]}`), "json")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	breakers := circuitbreaker.NewGroup(circuitbreaker.Thresholds{MaxFailures: 1}, time.Minute, nil)
	breakers.Get("ethereum/Alchemy").RecordFailure(errors.New("timeout"))

	refresher := &fakeRefresher{}
	collector := &fakeCollector{}
	s := &Server{
		cfg:       config.Config{Environment: "development", Region: "fra1", PassTimeout: time.Minute},
		endpoints: endpoints,
		refresher: refresher,
		collector: collector,
		auth:      security.NewAuthorizer("s3cret", false),
		rateLimit: rate.NewLimiter(limit, burst),
		metrics:   metrics.New(reg),
		registry:  reg,
		breakers:  breakers,
	}
	return s, refresher, collector
}

func do(h http.Handler, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t, rate.Inf, 1)
	rec := do(s.routes(), "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, version, body["version"])
}

func TestServer_Status(t *testing.T) {
	s, _, _ := newTestServer(t, rate.Inf, 1)
	rec := do(s.routes(), "/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Region      string            `json:"region"`
		Blockchains []string          `json:"blockchains"`
		Supported   []string          `json:"supported"`
		Breakers    map[string]string `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fra1", body.Region)
	assert.Equal(t, []string{"ethereum"}, body.Blockchains)
	assert.Contains(t, body.Supported, "solana")
	assert.Len(t, body.Supported, len(types.Supported()))
	assert.Equal(t, "open", body.Breakers["ethereum/Alchemy"])
}

func TestServer_UpdateState(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		err      error
		wantCode int
		wantRuns int
	}{
		{"authorized", "s3cret", nil, http.StatusOK, 1},
		{"missing token", "", nil, http.StatusUnauthorized, 0},
		{"wrong token", "nope", nil, http.StatusUnauthorized, 0},
		{"pass error", "s3cret", errors.New("lease: connection refused"), http.StatusInternalServerError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, refresher, _ := newTestServer(t, rate.Inf, 1)
			refresher.err = tt.err

			rec := do(s.routes(), "/api/support/update-state", tt.token)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantRuns, refresher.calls)
			if tt.wantRuns > 0 {
				assert.True(t, refresher.deadline, "pass runs under a deadline")
			}
		})
	}
}

func TestServer_Read(t *testing.T) {
	tests := []struct {
		path     string
		wantCode int
	}{
		{"/api/read/ethereum", http.StatusOK},
		{"/api/read/Ethereum", http.StatusOK},
		{"/api/read/dogecoin", http.StatusNotFound},
		{"/api/read/solana", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s, _, _ := newTestServer(t, rate.Inf, 1)
			rec := do(s.routes(), tt.path, "s3cret")
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	s, _, collector := newTestServer(t, rate.Inf, 1)
	rec := do(s.routes(), "/api/read/ethereum", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []types.Blockchain{types.ChainEthereum}, collector.chains)
	assert.Contains(t, rec.Body.String(), `"cold_start":true`)
}

func TestServer_RateLimit(t *testing.T) {
	s, refresher, _ := newTestServer(t, rate.Limit(0.001), 1)
	h := s.routes()

	assert.Equal(t, http.StatusOK, do(h, "/api/support/update-state", "s3cret").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, "/api/support/update-state", "s3cret").Code)
	assert.Equal(t, 1, refresher.calls)
}

func TestServer_MetricsExposeTriggers(t *testing.T) {
	s, _, _ := newTestServer(t, rate.Inf, 1)
	h := s.routes()

	do(h, "/api/support/update-state", "s3cret")
	do(h, "/api/support/update-state", "")

	rec := do(h, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="update-state"`), body)
	assert.Contains(t, body, `code="401"`)
	assert.Contains(t, body, `code="200"`)
}
