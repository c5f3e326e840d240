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
	"strings"

	"cryptopay-go/internal/common"
	"cryptopay-go/internal/config"
	"cryptopay-go/internal/database"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

type invoiceStats struct {
	totalUsers        int
	totalInvoices     int
	usersWithInvoices int
	byStatus          map[models.InvoiceStatus]int
}

func formatFiat(invoice models.Invoice) string {
	if !invoice.FiatAmount.Valid {
		return "n/a"
	}
	return invoice.FiatAmount.Decimal.StringFixed(2)
}

func printInvoice(invoice models.Invoice, isLast bool) {
	symbol := common.BoxPrefix(isLast)

	fmt.Printf("%s %-12s %-9s %12s %-5s (usd: %s, due: %s, tx: %s)\n",
		symbol,
		invoice.InvoiceNumber,
		invoice.Status,
		invoice.Amount.String(),
		invoice.CryptoType,
		formatFiat(invoice),
		invoice.DueDate.Format("2006-01-02"),
		common.Truncate(invoice.TransactionHash, 12))
}

func printUserHeader(user common.UserInfo, invoiceCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Username, user.Role)
	fmt.Printf("│  ID: %d\n", user.Id)
	fmt.Printf("│  Wallet: %s\n", common.Truncate(user.WalletAddress, 44))
	fmt.Printf("│  Invoices: %d\n", invoiceCount)
	common.PrintBoxSeparator(78)
}

func processUser(ctx context.Context, user common.UserInfo, status models.InvoiceStatus, dbService *database.Service) ([]models.Invoice, error) {
	invoices, err := dbService.ListInvoices(ctx, store.InvoiceFilter{CreatorId: &user.Id, Status: status})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	if len(invoices) == 0 {
		return nil, nil
	}

	printUserHeader(user, len(invoices))
	for i, invoice := range invoices {
		printInvoice(invoice, i == len(invoices)-1)
	}
	return invoices, nil
}

func processUsersAndGenerateReport(ctx context.Context, users []common.UserInfo, status models.InvoiceStatus, dbService *database.Service, logger *zap.Logger) invoiceStats {
	stats := invoiceStats{byStatus: make(map[models.InvoiceStatus]int)}

	for _, user := range users {
		stats.totalUsers++

		invoices, err := processUser(ctx, user, status, dbService)
		if err != nil {
			logger.Error("Failed to process user",
				zap.Int64("user_id", user.Id),
				zap.String("username", user.Username),
				zap.Error(err))
			continue
		}

		if len(invoices) > 0 {
			stats.usersWithInvoices++
			stats.totalInvoices += len(invoices)
		}
		for _, invoice := range invoices {
			stats.byStatus[invoice.Status]++
		}
	}

	return stats
}

func statusBreakdown(counts map[models.InvoiceStatus]int) string {
	var parts []string
	for _, status := range models.AllInvoiceStatuses {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", status, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by username or wallet address (optional)")
	statusFlag := flag.String("status", "", "Filter by invoice status (optional)")
	flag.Parse()

	status := models.InvoiceStatus(strings.ToLower(*statusFlag))
	if status != "" && !status.Valid() {
		logger.Fatal("Invalid invoice status", zap.String("status", *statusFlag))
	}

	logger.Info("Starting invoice report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Read-only, no chain or price feed needed
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	users, err := common.InitializeUsers(ctx, dbService, *userFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("INVOICE REPORT", common.DefaultWidth)

	stats := processUsersAndGenerateReport(ctx, users, status, dbService, logger)

	summary := fmt.Sprintf("SUMMARY: %d invoices across %d of %d users (%s)",
		stats.totalInvoices, stats.usersWithInvoices, stats.totalUsers, statusBreakdown(stats.byStatus))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Invoice report completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_invoices", stats.usersWithInvoices),
		zap.Int("total_invoices", stats.totalInvoices))
}
