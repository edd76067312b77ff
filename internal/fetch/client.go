// Package fetch retrieves the latest chain snapshot from RPC providers,
// falling back through providers in configured order.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// RPCError is a JSON-RPC error object returned by a provider
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// NewHTTPClient returns the retrying client shared by all state fetchers
func NewHTTPClient() *http.Client {
	return newRetryClient().StandardClient()
}

// Client is a minimal JSON-RPC 2.0 client over HTTP
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a JSON-RPC client for endpoint. A nil httpClient uses NewHTTPClient.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Code   int             `json:"code"`
}

// Call invokes method with params and decodes the result into out
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("error encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading %s response: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", method, resp.StatusCode)
		}
		return fmt.Errorf("error decoding %s response: %w", method, err)
	}

	if rpcErr := decodeRPCError(rpcResp); rpcErr != nil {
		return rpcErr
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", method, resp.StatusCode)
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%s: empty result", method)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("error decoding %s result: %w", method, err)
	}
	return nil
}

// decodeRPCError handles both standard error objects and the
// string-valued errors some providers return
func decodeRPCError(r rpcResponse) *RPCError {
	if len(r.Error) == 0 || string(r.Error) == "null" {
		return nil
	}
	var obj RPCError
	if err := json.Unmarshal(r.Error, &obj); err == nil {
		return &obj
	}
	var msg string
	if err := json.Unmarshal(r.Error, &msg); err == nil {
		return &RPCError{Code: r.Code, Message: msg}
	}
	return &RPCError{Code: r.Code, Message: string(r.Error)}
}

// rpcErrorCode extracts the JSON-RPC error code from err, if any
func rpcErrorCode(err error) (int, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code, true
	}
	return 0, false
}
