// Package types contains shared type definitions used across multiple packages
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedBlockchain is returned when a blockchain name does not resolve to a known network
var ErrUnsupportedBlockchain = errors.New("unsupported blockchain")

// Blockchain represents a blockchain network monitored by the agent
type Blockchain string

// Supported blockchain networks
const (
	ChainEthereum    Blockchain = "ethereum"
	ChainBase        Blockchain = "base"
	ChainArbitrum    Blockchain = "arbitrum"
	ChainBNB         Blockchain = "bnb"
	ChainMonad       Blockchain = "monad"
	ChainHyperliquid Blockchain = "hyperliquid"
	ChainSolana      Blockchain = "solana"
	ChainTON         Blockchain = "ton"
)

// Family groups blockchains that share one RPC dialect
type Family int

// Handler families
const (
	FamilyEVM Family = iota
	FamilySolana
	FamilyTON
)

// String returns the family name
func (f Family) String() string {
	switch f {
	case FamilyEVM:
		return "evm"
	case FamilySolana:
		return "solana"
	case FamilyTON:
		return "ton"
	default:
		return "unknown"
	}
}

// Offsets is the (low, high) distance behind the latest block used for historical queries
type Offsets struct {
	Low  uint64 `json:"low"`
	High uint64 `json:"high"`
}

type chainInfo struct {
	family  Family
	display string
	offsets Offsets
}

var evmOffsets = Offsets{Low: 7200, High: 14400}

var chains = map[Blockchain]chainInfo{
	ChainEthereum:    {family: FamilyEVM, display: "Ethereum", offsets: evmOffsets},
	ChainBase:        {family: FamilyEVM, display: "Base", offsets: evmOffsets},
	ChainArbitrum:    {family: FamilyEVM, display: "Arbitrum", offsets: evmOffsets},
	ChainBNB:         {family: FamilyEVM, display: "BNB", offsets: evmOffsets},
	ChainMonad:       {family: FamilyEVM, display: "Monad", offsets: evmOffsets},
	ChainHyperliquid: {family: FamilyEVM, display: "Hyperliquid", offsets: evmOffsets},
	ChainSolana:      {family: FamilySolana, display: "Solana", offsets: Offsets{Low: 432000, High: 648000}},
	ChainTON:         {family: FamilyTON, display: "TON", offsets: Offsets{Low: 1555200, High: 1572480}},
}

var aliases = map[string]Blockchain{
	"bnbsc": ChainBNB,
	"bsc":   ChainBNB,
}

// order fixes iteration order for Supported
var order = []Blockchain{
	ChainEthereum, ChainBase, ChainArbitrum, ChainBNB,
	ChainMonad, ChainHyperliquid, ChainSolana, ChainTON,
}

// Parse resolves a case-insensitive blockchain name
func Parse(name string) (Blockchain, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		return alias, nil
	}
	if _, ok := chains[Blockchain(key)]; ok {
		return Blockchain(key), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBlockchain, name)
}

// Supported returns every known blockchain in a stable order
func Supported() []Blockchain {
	out := make([]Blockchain, len(order))
	copy(out, order)
	return out
}

// Family returns the RPC family this blockchain belongs to
func (b Blockchain) Family() Family {
	return chains[b].family
}

// DisplayName is the label value used in exported metrics
func (b Blockchain) DisplayName() string {
	if info, ok := chains[b]; ok {
		return info.display
	}
	return string(b)
}

// DefaultOffsets returns the built-in historical block offsets
func (b Blockchain) DefaultOffsets() Offsets {
	return chains[b].offsets
}

func (b Blockchain) String() string {
	return string(b)
}
