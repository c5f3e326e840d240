package main

import (
	"context"
	"flag"
	"fmt"

	"cryptopay-go/internal/common"
	"cryptopay-go/internal/config"
	"cryptopay-go/internal/models"

	"go.uber.org/zap"
)

func printPrices(prices []models.CryptoPrice) {
	common.PrintHeader("CRYPTO PRICES", common.DefaultWidth)
	for i, price := range prices {
		fmt.Printf("%s %-6s %-12s %14s USD  (24h: %s%%, updated: %s)\n",
			common.BoxPrefix(i == len(prices)-1),
			price.Symbol,
			price.Name,
			price.Price.StringFixed(2),
			price.PriceChange24h.StringFixed(2),
			price.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func printUsers(users []models.User) {
	common.PrintHeader("USERS", common.DefaultWidth)
	if len(users) == 0 {
		fmt.Println("No users yet. Create one with: go run cmd/adduser/main.go")
	}
	for i, user := range users {
		role := string(user.Role)
		if role == "" {
			role = "unset"
		}
		fmt.Printf("%s #%-4d %-20s role=%-10s wallet=%s\n",
			common.BoxPrefix(i == len(users)-1),
			user.Id,
			user.Username,
			role,
			common.Truncate(user.WalletAddress, 20))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func refreshPrices(ctx context.Context, services *common.Services) []models.CryptoPrice {
	zap.L().Info("Refreshing prices from feed")
	prices, err := services.Billing.RefreshPrices(ctx)
	if err != nil {
		zap.L().Warn("Price refresh failed, keeping seeded prices", zap.Error(err))
		prices, err = services.DbService.ListPrices(ctx)
		if err != nil {
			zap.L().Fatal("Failed to read prices", zap.Error(err))
		}
	}
	return prices
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	demoFlag := flag.Bool("demo", false, "Create the demo users alice and bob")
	refreshFlag := flag.Bool("refresh-prices", false, "Fetch live prices after seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	cfg.Database.SeedPrices = true
	if *demoFlag {
		cfg.Database.SeedDemoUsers = true
	}

	zap.L().Info("Initializing database", zap.String("path", cfg.Database.Path))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var prices []models.CryptoPrice
	if *refreshFlag {
		prices = refreshPrices(ctx, services)
	} else {
		prices, err = services.DbService.ListPrices(ctx)
		if err != nil {
			zap.L().Fatal("Failed to read prices", zap.Error(err))
		}
	}

	users, err := services.DbService.GetUsers(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read users from database", zap.Error(err))
	}

	printPrices(prices)
	printUsers(users)

	zap.L().Info("Initialization complete",
		zap.Int("prices", len(prices)),
		zap.Int("users", len(users)))
}
