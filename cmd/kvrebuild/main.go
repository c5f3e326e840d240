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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"cryptopay-go/internal/common"
	"cryptopay-go/internal/config"
	"cryptopay-go/internal/kv"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	backendFlag := flag.String("backend", "", "Override KV backend: sqlite or redis (optional)")
	pathFlag := flag.String("path", "", "Override SQLite KV file path (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *backendFlag != "" {
		cfg.KV.Backend = *backendFlag
	}
	if *pathFlag != "" {
		cfg.KV.Path = *pathFlag
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	logger.Info("Opening KV mirror",
		zap.String("backend", cfg.KV.Backend),
		zap.String("namespace", cfg.KV.Namespace))
	backend, err := kv.Open(ctx, cfg.KV)
	if err != nil {
		logger.Fatal("Failed to open KV backend", zap.Error(err))
	}
	mirror := kv.NewMirror(backend)
	defer func() {
		if err := mirror.Close(); err != nil {
			logger.Warn("Failed to close KV mirror", zap.Error(err))
		}
	}()

	start := time.Now()
	stats, err := mirror.Rebuild(ctx, dbService)
	if err != nil {
		logger.Fatal("Mirror rebuild failed", zap.Error(err))
	}
	elapsed := time.Since(start)

	common.PrintHeader("KV MIRROR REBUILT", common.DefaultWidth)
	fmt.Printf("Backend:      %s\n", cfg.KV.Backend)
	fmt.Printf("Invoices:     %d\n", stats.Invoices)
	fmt.Printf("Transactions: %d\n", stats.Transactions)
	fmt.Printf("Transfers:    %d\n", stats.Transfers)
	fmt.Printf("Elapsed:      %s\n", elapsed.Round(time.Millisecond))
	common.PrintSeparator("=", common.DefaultWidth)

	logger.Info("Mirror rebuild completed",
		zap.Int("invoices", stats.Invoices),
		zap.Int("transactions", stats.Transactions),
		zap.Int("transfers", stats.Transfers),
		zap.Duration("elapsed", elapsed))
}
