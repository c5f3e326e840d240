package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	KV       KVConfig
	Solana   SolanaConfig
	Prices   PriceConfig
	Bridge   BridgeConfig
	Formance FormanceConfig
	Invoices InvoiceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	SeedPrices      bool
	SeedDemoUsers   bool
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

// KVConfig selects and configures the key-value mirror backend
type KVConfig struct {
	Backend        string // "sqlite" or "redis"
	Path           string
	Namespace      string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RebuildOnStart bool
}

type SolanaConfig struct {
	RPCEndpoint    string
	AirdropEnabled bool
	Commitment     string
}

// PriceConfig holds price feed settings
type PriceConfig struct {
	APIURL          string
	PollingInterval time.Duration
	RequestTimeout  time.Duration
	AssetsFile      string
}

// BridgeConfig holds cross-chain transfer simulator settings
type BridgeConfig struct {
	SettleDelay time.Duration
	// SuccessRate is the chance a transfer completes; nil selects the default
	SuccessRate *float64
}

// FormanceConfig holds Formance ledger sink settings; the sink is disabled when StackURL is empty
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

type InvoiceConfig struct {
	OverdueSweepInterval time.Duration
	DefaultCryptoType    string
}
