package models

// Asset maps a tracked currency symbol to its price feed identifier
type Asset struct {
	Symbol      string `yaml:"symbol" json:"symbol"`
	Name        string `yaml:"name" json:"name"`
	CoingeckoId string `yaml:"coingecko_id" json:"coingeckoId"`
}

// DefaultAssets is used when no assets file is configured
var DefaultAssets = []Asset{
	{Symbol: "BTC", Name: "Bitcoin", CoingeckoId: "bitcoin"},
	{Symbol: "ETH", Name: "Ethereum", CoingeckoId: "ethereum"},
	{Symbol: "USDC", Name: "USD Coin", CoingeckoId: "usd-coin"},
	{Symbol: "SOL", Name: "Solana", CoingeckoId: "solana"},
}

// AssetSymbols returns the set of tracked symbols, used to validate cryptoType.
func AssetSymbols(assets []Asset) map[string]bool {
	symbols := make(map[string]bool, len(assets))
	for _, asset := range assets {
		symbols[asset.Symbol] = true
	}
	return symbols
}
