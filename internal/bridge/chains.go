package bridge

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Chain describes a network the simulator accepts.
type Chain struct {
	Name        string          `json:"name"`
	WormholeId  uint16          `json:"wormholeId"`
	NativeToken string          `json:"nativeToken"`
	UsdPrice    decimal.Decimal `json:"usdPrice"`
}

const unknownToken = "UNKNOWN"

// Static reference prices; arbitrum has none and values to zero.
var chains = map[string]Chain{
	"solana":   {Name: "solana", WormholeId: 1, NativeToken: "SOL", UsdPrice: decimal.RequireFromString("168.50")},
	"ethereum": {Name: "ethereum", WormholeId: 2, NativeToken: "ETH", UsdPrice: decimal.RequireFromString("3450.75")},
	"polygon":  {Name: "polygon", WormholeId: 5, NativeToken: "MATIC", UsdPrice: decimal.RequireFromString("0.72")},
	"arbitrum": {Name: "arbitrum", WormholeId: 23, NativeToken: "ETH", UsdPrice: decimal.Zero},
}

func LookupChain(name string) (Chain, bool) {
	chain, ok := chains[strings.ToLower(strings.TrimSpace(name))]
	return chain, ok
}

// Chains lists the supported networks ordered by Wormhole chain id.
func Chains() []Chain {
	out := make([]Chain, 0, len(chains))
	for _, chain := range chains {
		out = append(out, chain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WormholeId < out[j].WormholeId })
	return out
}

// TokenSymbol returns the native token of the chain, or UNKNOWN.
func TokenSymbol(chainName string) string {
	if chain, ok := LookupChain(chainName); ok {
		return chain.NativeToken
	}
	return unknownToken
}
