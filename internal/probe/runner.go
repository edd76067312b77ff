package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// Error classes reported on failed samples
const (
	ClassTimeout           = "timeout"
	ClassConnection        = "connection"
	ClassRPCError          = "rpc_error"
	ClassMalformedResponse = "malformed_response"
	ClassInvalidParams     = "invalid_params"
	ClassNoState           = "no_state"
)

const (
	// maxAttempts bounds sends of one probe; only a 429 earns the second
	maxAttempts       = 2
	defaultRetryAfter = 3 * time.Second
	maxResponseBytes  = 32 << 20
)

// Target is one provider endpoint being measured
type Target struct {
	Blockchain        types.Blockchain
	Provider          string
	HTTPEndpoint      string
	WebSocketEndpoint string
	SourceRegion      string
	TargetRegion      string
}

// probeError carries the error class of a failed call
type probeError struct {
	class  string
	status int
	err    error
}

func (e *probeError) Error() string {
	return fmt.Sprintf("%s: %v", e.class, e.err)
}

func (e *probeError) Unwrap() error {
	return e.err
}

func failWith(class string, err error) *probeError {
	return &probeError{class: class, err: err}
}

// transportError classifies dial and read errors
func transportError(err error) *probeError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return failWith(ClassTimeout, err)
	}
	return failWith(ClassConnection, err)
}

// Runner executes probes and turns every outcome into a sample
type Runner struct {
	client  *http.Client
	dialer  *websocket.Dialer
	timeout time.Duration
	now     func() time.Time
}

// NewRunner creates a runner bounding every probe by timeout
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{
		client: &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		timeout: timeout,
		now:     time.Now,
	}
}

// Run measures one probe against one provider. It never fails: every
// problem is reported on the returned sample.
func (r *Runner) Run(ctx context.Context, target Target, p Probe, in Input) model.LatencySample {
	sample := model.LatencySample{
		Blockchain:   target.Blockchain.DisplayName(),
		Provider:     target.Provider,
		Method:       p.Method,
		SourceRegion: target.SourceRegion,
		TargetRegion: target.TargetRegion,
		MetricType:   model.MetricTypeResponseTime,
		CollectedAt:  r.now().UTC(),
	}

	if p.NeedsState && !in.HasState() {
		sample.Status = model.StatusNoData
		sample.ErrorClass = ClassNoState
		return sample
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	elapsed, status, err := r.execute(ctx, target, p, in)
	sample.HTTPStatus = status
	if err != nil {
		class := ClassConnection
		var pe *probeError
		if errors.As(err, &pe) {
			class = pe.class
		}
		if ctx.Err() != nil && class == ClassConnection {
			class = ClassTimeout
		}
		sample.Fail(class)

		logrus.WithFields(logrus.Fields{
			"blockchain": target.Blockchain,
			"provider":   target.Provider,
			"api_method": p.Method,
			"class":      class,
		}).Debugf("Probe failed: %v", err)
		return sample
	}

	sample.Status = model.StatusSuccess
	sample.Seconds = elapsed.Seconds()
	return sample
}

func (r *Runner) execute(ctx context.Context, target Target, p Probe, in Input) (time.Duration, int, error) {
	var params any
	if p.Params != nil {
		var err error
		if params, err = p.Params(in); err != nil {
			return 0, 0, failWith(ClassInvalidParams, err)
		}
	}

	switch p.Kind {
	case KindWebSocket:
		if target.WebSocketEndpoint == "" {
			return 0, 0, failWith(ClassConnection, errors.New("no websocket endpoint"))
		}
		elapsed, err := r.runWebSocket(ctx, target.WebSocketEndpoint)
		return elapsed, 0, err
	case KindInfo:
		body, err := json.Marshal(params)
		if err != nil {
			return 0, 0, failWith(ClassInvalidParams, err)
		}
		return r.post(ctx, InfoURL(target.HTTPEndpoint), body, checkJSON)
	default:
		if params == nil {
			params = []any{}
		}
		body, err := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  p.Method,
			"params":  params,
		})
		if err != nil {
			return 0, 0, failWith(ClassInvalidParams, err)
		}
		return r.post(ctx, target.HTTPEndpoint, body, checkRPCResult)
	}
}

// post sends body and times from connection acquisition to the last byte
// read, so dial and TLS handshakes are excluded. A 429 is retried once.
func (r *Runner) post(ctx context.Context, url string, body []byte, check func([]byte) error) (time.Duration, int, error) {
	var status int
	for attempt := 1; ; attempt++ {
		var start time.Time
		trace := &httptrace.ClientTrace{
			GotConn: func(httptrace.GotConnInfo) { start = r.now() },
		}

		req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return 0, 0, failWith(ClassConnection, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return 0, 0, transportError(err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		end := r.now()
		status = resp.StatusCode
		if err != nil {
			return 0, status, transportError(err)
		}

		if status == http.StatusTooManyRequests && attempt < maxAttempts {
			wait := retryAfter(resp.Header.Get("Retry-After"), r.now())
			select {
			case <-ctx.Done():
				return 0, status, failWith(ClassTimeout, ctx.Err())
			case <-time.After(wait):
			}
			continue
		}

		if status != http.StatusOK {
			return 0, status, &probeError{
				class:  fmt.Sprintf("http_%d", status),
				status: status,
				err:    fmt.Errorf("unexpected status %d", status),
			}
		}
		if err := check(data); err != nil {
			return 0, status, err
		}
		return end.Sub(start), status, nil
	}
}

// retryAfter parses a Retry-After header in seconds or HTTP-date form
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

// checkRPCResult requires a JSON-RPC envelope with a result and no error
func checkRPCResult(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return failWith(ClassMalformedResponse, err)
	}
	if raw, ok := envelope["error"]; ok && !isNull(raw) {
		return failWith(ClassRPCError, fmt.Errorf("rpc error: %s", truncate(raw)))
	}
	if _, ok := envelope["result"]; !ok {
		return failWith(ClassMalformedResponse, errors.New("response has no result"))
	}
	return nil
}

func checkJSON(data []byte) error {
	if !json.Valid(data) {
		return failWith(ClassMalformedResponse, errors.New("response is not JSON"))
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func truncate(raw []byte) string {
	const limit = 200
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}

// InfoURL maps an EVM endpoint to its /info sibling
func InfoURL(endpoint string) string {
	if strings.HasSuffix(endpoint, "/evm") {
		return strings.TrimSuffix(endpoint, "/evm") + "/info"
	}
	if strings.HasSuffix(endpoint, "/") {
		return endpoint + "info"
	}
	return endpoint + "/info"
}
