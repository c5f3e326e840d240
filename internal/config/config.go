/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptopay-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	pricePollingInterval, err := getEnvDuration("PRICE_POLLING_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	priceRequestTimeout, err := getEnvDuration("PRICE_REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	settleDelay, err := getEnvDuration("BRIDGE_SETTLE_DELAY", 15*time.Second)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("OVERDUE_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	successRate, err := getEnvRatio("BRIDGE_SUCCESS_RATE", 0.7)
	if err != nil {
		return nil, err
	}

	kvBackend := strings.ToLower(getEnvString("KV_BACKEND", "sqlite"))
	if kvBackend != "sqlite" && kvBackend != "redis" {
		return nil, fmt.Errorf("invalid KV_BACKEND: %q (expected sqlite or redis)", kvBackend)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "cryptopay.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			SeedPrices:      getEnvBool("SEED_PRICES", true),
			SeedDemoUsers:   getEnvBool("CREATE_DEMO_USERS", false),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":5000"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 40),
		},
		KV: models.KVConfig{
			Backend:        kvBackend,
			Path:           getEnvString("KV_PATH", "walrus.db"),
			Namespace:      getEnvString("KV_NAMESPACE", "walrus"),
			RedisAddr:      getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword:  getEnvString("REDIS_PASSWORD", ""),
			RedisDB:        getEnvInt("REDIS_DB", 0),
			RebuildOnStart: getEnvBool("KV_REBUILD_ON_START", true),
		},
		Solana: models.SolanaConfig{
			RPCEndpoint:    getEnvString("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			AirdropEnabled: getEnvBool("SOLANA_AIRDROP_ENABLED", true),
			Commitment:     getEnvString("SOLANA_COMMITMENT", "confirmed"),
		},
		Prices: models.PriceConfig{
			APIURL:          getEnvString("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
			PollingInterval: pricePollingInterval,
			RequestTimeout:  priceRequestTimeout,
			AssetsFile:      getEnvString("ASSETS_FILE", "assets.yaml"),
		},
		Bridge: models.BridgeConfig{
			SettleDelay: settleDelay,
			SuccessRate: &successRate,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "cryptopay"),
		},
		Invoices: models.InvoiceConfig{
			OverdueSweepInterval: sweepInterval,
			DefaultCryptoType:    strings.ToUpper(getEnvString("DEFAULT_CRYPTO_TYPE", "SOL")),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvRatio reads a fraction in [0, 1]. Zero is a valid setting.
func getEnvRatio(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	ratio, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return 0, fmt.Errorf("invalid %s: %q (must be between 0 and 1)", key, value)
	}
	return ratio, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
