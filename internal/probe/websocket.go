package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
)

type wsRequest struct {
	ID      int    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsMessage struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Timestamp string `json:"timestamp"`
		} `json:"result"`
	} `json:"params"`
}

// runWebSocket subscribes to newHeads and reports how far the first head's
// timestamp lags behind the local clock
func (r *Runner) runWebSocket(ctx context.Context, endpoint string) (time.Duration, error) {
	conn, _, err := r.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return 0, transportError(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	subscribe := wsRequest{ID: 1, JSONRPC: "2.0", Method: "eth_subscribe", Params: []any{"newHeads"}}
	if err := conn.WriteJSON(subscribe); err != nil {
		return 0, wsError(ctx, err)
	}

	var subID string
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return 0, wsError(ctx, err)
		}

		if msg.ID != nil && *msg.ID == 1 {
			if !isNull(msg.Error) {
				return 0, failWith(ClassRPCError, fmt.Errorf("subscribe rejected: %s", truncate(msg.Error)))
			}
			if err := json.Unmarshal(msg.Result, &subID); err != nil || subID == "" {
				return 0, failWith(ClassRPCError, errors.New("subscription id missing"))
			}
			continue
		}

		if msg.Params == nil {
			continue
		}

		ts, err := hexutil.DecodeUint64(msg.Params.Result.Timestamp)
		if err != nil {
			return 0, failWith(ClassMalformedResponse, fmt.Errorf("head timestamp: %w", err))
		}
		lag := r.now().Sub(time.Unix(int64(ts), 0))
		if lag < 0 {
			lag = 0
		}

		if subID == "" {
			subID = msg.Params.Subscription
		}
		unsubscribe := wsRequest{ID: 2, JSONRPC: "2.0", Method: "eth_unsubscribe", Params: []any{subID}}
		_ = conn.WriteJSON(unsubscribe)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return lag, nil
	}
}

func wsError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return failWith(ClassTimeout, err)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return failWith(ClassMalformedResponse, err)
	}
	return transportError(err)
}
