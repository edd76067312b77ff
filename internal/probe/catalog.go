package probe

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// Kind selects how a probe is sent
type Kind string

// Probe kinds
const (
	KindJSONRPC   Kind = "jsonrpc"
	KindWebSocket Kind = "websocket"
	KindInfo      Kind = "info"
)

// ParamsFunc builds request params from the pass input
type ParamsFunc func(in Input) (any, error)

// Probe describes one measured call
type Probe struct {
	// Method is the api_method label
	Method string
	Kind   Kind

	// NeedsState probes report no_data on a cold start
	NeedsState bool

	Params ParamsFunc
}

var errNoState = errors.New("no chain state")

// Transfer(address,address,uint256)
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// logWindow is the eth_getLogs span starting at the historical block
const logWindow = 100

type evmProfile struct {
	callTo      common.Address
	callData    string
	balance     common.Address
	logsAddress common.Address
	logsTopic   common.Hash
	debug       bool
	websocket   bool
	info        bool
}

var evmProfiles = map[types.Blockchain]evmProfile{
	types.ChainEthereum: {
		callTo:      common.HexToAddress("0xc2edad668740f1aa35e4d8f227fb8e17dca888cd"),
		callData:    "0x1526fe270000000000000000000000000000000000000000000000000000000000000001",
		balance:     common.HexToAddress("0x690B9A9E9aa1C9dB991C7721a92d351Db4FaC990"),
		logsAddress: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		logsTopic:   transferTopic,
		debug:       true,
		websocket:   true,
	},
	types.ChainBase: {
		callTo:      common.HexToAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"),
		callData:    "0x70a082310000000000000000000000001985ea6e9c68e1c272d8209f3b478ac2fdb25c87",
		balance:     common.HexToAddress("0xF977814e90dA44bFA03b6295A0616a897441aceC"),
		logsAddress: common.HexToAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"),
		logsTopic:   transferTopic,
		debug:       true,
		websocket:   true,
	},
	types.ChainArbitrum: {
		callTo:      common.HexToAddress("0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb"),
		callData:    "0x026b1d5f0000000000000000000000000000000000000000000000000000000000000000",
		balance:     common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD"),
		logsAddress: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
		logsTopic:   transferTopic,
		debug:       true,
		websocket:   true,
	},
	types.ChainBNB: {
		callTo:      common.HexToAddress("0xff75B6da14FfbbfD355Daf7a2731456b3562Ba6D"),
		callData:    "0x026b1d5f0000000000000000000000000000000000000000000000000000000000000000",
		balance:     common.HexToAddress("0x6807dc923806fE8Fd134338EABCA509979a7e0cB"),
		logsAddress: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
		logsTopic:   transferTopic,
		debug:       true,
		websocket:   true,
	},
	types.ChainMonad: {
		callTo:      common.HexToAddress("0x754704Bc059F8C67012fEd69BC8A327a5aafb603"),
		callData:    "0x70a082310000000000000000000000001985ea6e9c68e1c272d8209f3b478ac2fdb25c87",
		balance:     common.HexToAddress("0x754704Bc059F8C67012fEd69BC8A327a5aafb603"),
		logsAddress: common.HexToAddress("0x754704Bc059F8C67012fEd69BC8A327a5aafb603"),
		logsTopic:   transferTopic,
		debug:       true,
		websocket:   true,
	},
	types.ChainHyperliquid: {
		callTo:      common.HexToAddress("0x5555555555555555555555555555555555555555"),
		callData:    "0x18160ddd",
		balance:     common.HexToAddress("0xFC1286EeddF81d6955eDAd5C8D99B8Aa32F3D2AA"),
		logsAddress: common.HexToAddress("0x5555555555555555555555555555555555555555"),
		logsTopic:   common.HexToHash("0x7fcf532c15f0a6db0bd6d0e038bea71d30d808c7d98cb3bf7268a95bf5081b65"),
		info:        true,
	},
}

// Catalog returns the probe set for a blockchain
func Catalog(chain types.Blockchain) []Probe {
	switch chain.Family() {
	case types.FamilySolana:
		return solanaCatalog()
	case types.FamilyTON:
		return tonCatalog()
	}
	profile, ok := evmProfiles[chain]
	if !ok {
		return nil
	}
	return evmCatalog(profile)
}

func static(v any) ParamsFunc {
	return func(Input) (any, error) { return v, nil }
}

func withState(build func(s model.ChainState, in Input) (any, error)) ParamsFunc {
	return func(in Input) (any, error) {
		if in.State == nil {
			return nil, errNoState
		}
		return build(*in.State, in)
	}
}

func evmCatalog(p evmProfile) []Probe {
	probes := []Probe{
		{Method: "eth_blockNumber", Kind: KindJSONRPC, Params: static([]any{})},
		{
			Method: "eth_call",
			Kind:   KindJSONRPC,
			Params: static([]any{
				map[string]string{"to": p.callTo.Hex(), "data": p.callData},
				"latest",
			}),
		},
		{
			Method:     "eth_getBalance",
			Kind:       KindJSONRPC,
			NeedsState: true,
			Params: withState(func(_ model.ChainState, in Input) (any, error) {
				return []any{p.balance.Hex(), hexutil.EncodeUint64(in.Historical)}, nil
			}),
		},
		{
			Method:     "eth_getLogs",
			Kind:       KindJSONRPC,
			NeedsState: true,
			Params: withState(func(_ model.ChainState, in Input) (any, error) {
				to := in.Historical + logWindow
				if to > in.Range.To {
					to = max(in.Range.To, in.Historical)
				}
				return []any{map[string]any{
					"fromBlock": hexutil.EncodeUint64(in.Historical),
					"toBlock":   hexutil.EncodeUint64(to),
					"address":   p.logsAddress.Hex(),
					"topics":    []string{p.logsTopic.Hex()},
				}}, nil
			}),
		},
		{
			Method:     "eth_getTransactionReceipt",
			Kind:       KindJSONRPC,
			NeedsState: true,
			Params: withState(func(s model.ChainState, _ Input) (any, error) {
				return []any{s.TxID}, nil
			}),
		},
	}

	if p.debug {
		probes = append(probes,
			Probe{
				Method: "debug_traceBlockByNumber",
				Kind:   KindJSONRPC,
				Params: static([]any{"latest", map[string]string{"tracer": "callTracer"}}),
			},
			Probe{
				Method:     "debug_traceTransaction",
				Kind:       KindJSONRPC,
				NeedsState: true,
				Params: withState(func(s model.ChainState, _ Input) (any, error) {
					return []any{s.TxID, map[string]string{"tracer": "callTracer"}}, nil
				}),
			},
		)
	}

	if p.websocket {
		probes = append(probes, Probe{Method: "eth_subscribe", Kind: KindWebSocket})
	}

	if p.info {
		const user = "0x31ca8395cf837de08b24da3f660e77761dfb974b"
		for _, method := range []string{"clearinghouseState", "openOrders"} {
			probes = append(probes, Probe{
				Method: method,
				Kind:   KindInfo,
				Params: static(map[string]string{"type": method, "user": user}),
			})
		}
	}
	return probes
}

var (
	solanaBalanceAccount = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	solanaProgram        = solana.MustPublicKeyFromBase58("FsJ3A3u2vn5cTVofAjvy6y5kwABJAqYWpe4975bi2epH")
)

// Signed transfer whose blockhash the node replaces before simulating
const solanaSimulateTx = "AQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAAEDArczbMia1tLmq7zz4DinMNN0pJ1JtLdqIJPUw3YrGCzYAMHBsgN27lcgB6H2WQvFgyZuJYHa46puOQo9yQ8CVQbd9uHXZaGT2cvhRs7reawctIXtX1s3kTqM9YV+/wCp20C7Wj2aiuk5TReAXo+VTVg8QTHjs0UjNMMKCvpzZ+ABAgEBARU="

func solanaCatalog() []Probe {
	return []Probe{
		{Method: "getLatestBlockhash", Kind: KindJSONRPC, Params: static([]any{})},
		{
			Method: "simulateTransaction",
			Kind:   KindJSONRPC,
			Params: static([]any{
				solanaSimulateTx,
				map[string]any{"encoding": "base64", "replaceRecentBlockhash": true},
			}),
		},
		{
			Method: "getBalance",
			Kind:   KindJSONRPC,
			Params: static([]any{solanaBalanceAccount.String()}),
		},
		{
			Method:     "getBlock",
			Kind:       KindJSONRPC,
			NeedsState: true,
			Params: withState(func(_ model.ChainState, in Input) (any, error) {
				return []any{in.Historical, map[string]any{
					"encoding":                       "jsonParsed",
					"maxSupportedTransactionVersion": 0,
					"transactionDetails":             "none",
					"rewards":                        false,
				}}, nil
			}),
		},
		{
			Method:     "getTransaction",
			Kind:       KindJSONRPC,
			NeedsState: true,
			Params: withState(func(s model.ChainState, _ Input) (any, error) {
				return []any{s.TxID, map[string]any{
					"encoding":                       "jsonParsed",
					"maxSupportedTransactionVersion": 0,
				}}, nil
			}),
		},
		{
			Method: "getProgramAccounts",
			Kind:   KindJSONRPC,
			Params: static([]any{solanaProgram.String(), map[string]string{"encoding": "jsonParsed"}}),
		},
	}
}

const tonWallet = "EQDtFpEwcFAEcRe5mLVh2N6C0x-_hJEM7W61_JLnSF74p4q2"

func tonCatalog() []Probe {
	return []Probe{
		{
			Method: "runGetMethod",
			Kind:   KindJSONRPC,
			Params: static(map[string]any{
				"address": "EQCxE6mUtQJKFnGfaROTKOt1lZbDiiX1kCixRv7Nw2Id_sDs",
				"method":  "get_wallet_address",
				"stack": [][]string{
					{"tvm.Slice", "te6cckEBAQEAJAAAQ4AbUzrTQYTUv8s/I9ds2TSZgRjyrgl2S2LKcZMEFcxj6PARy3rF"},
				},
			}),
		},
		{
			Method:     "getBlockHeader",
			Kind:       KindJSONRPC,
			NeedsState: true,
			Params: withState(func(s model.ChainState, in Input) (any, error) {
				id, err := model.ParseTONBlockID(s.BlockID)
				if err != nil {
					return nil, err
				}
				return tonBlockParams(id.Workchain, id.Shard, in.Historical), nil
			}),
		},
		{
			Method: "getWalletInformation",
			Kind:   KindJSONRPC,
			Params: static(map[string]string{"address": tonWallet}),
		},
		{
			Method: "getAddressBalance",
			Kind:   KindJSONRPC,
			Params: static(map[string]string{"address": tonWallet}),
		},
		{
			Method:     "getBlockTransactions",
			Kind:       KindJSONRPC,
			NeedsState: true,
			Params: withState(func(s model.ChainState, _ Input) (any, error) {
				id, err := model.ParseTONBlockID(s.BlockID)
				if err != nil {
					return nil, err
				}
				params := tonBlockParams(id.Workchain, id.Shard, id.Seqno)
				params["count"] = 40
				return params, nil
			}),
		},
	}
}

func tonBlockParams(workchain int32, shard string, seqno uint64) map[string]any {
	return map[string]any{"workchain": workchain, "shard": shard, "seqno": seqno}
}
