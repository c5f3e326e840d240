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
	"os"
	"os/signal"
	"sync"
	"syscall"

	"cryptopay-go/internal/common"
	"cryptopay-go/internal/config"
	"cryptopay-go/internal/listener"
	"cryptopay-go/internal/server"

	"go.uber.org/zap"
)

type worker interface {
	Stop()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting CryptoPay server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var workers []worker

	priceListener := listener.NewPriceListener(services.Billing, cfg.Prices.PollingInterval)
	if err := priceListener.Start(ctx); err != nil {
		zap.L().Error("Failed to start price listener", zap.Error(err))
	} else {
		workers = append(workers, priceListener)
	}

	sweeper := listener.NewOverdueSweeper(services.Billing, cfg.Invoices.OverdueSweepInterval)
	if err := sweeper.Start(ctx); err != nil {
		zap.L().Error("Failed to start overdue sweeper", zap.Error(err))
	} else {
		workers = append(workers, sweeper)
	}

	srv := server.NewServer(cfg.Server, services.Billing)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	zap.L().Info("Server running",
		zap.String("addr", cfg.Server.Addr),
		zap.Int("workers", len(workers)))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping server and workers...")
	case err := <-serverErr:
		if err != nil {
			zap.L().Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP server did not shut down cleanly", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range workers {
			wg.Add(1)
			go func(w worker) {
				defer wg.Done()
				w.Stop()
			}(w)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All workers stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
