package database

import (
	"context"
	"testing"
	"time"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
		SeedPrices:   true,
	}

	svc, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		svc.Close()
	}
	return svc, cleanup
}

func createTestUser(t *testing.T, svc *Service, username string, role models.Role) *models.User {
	t.Helper()

	user, err := svc.CreateUser(context.Background(), store.CreateUserParams{
		Username: username,
		Role:     role,
		Email:    username + "@example.com",
	})
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func invoiceParams(creatorId int64) store.CreateInvoiceParams {
	return store.CreateInvoiceParams{
		CreatorId:              creatorId,
		RecipientName:          "Acme Corp",
		RecipientWalletAddress: "RecipientWallet1111111111111111111111111111",
		Amount:                 decimal.RequireFromString("2.5"),
		CryptoType:             "SOL",
		Status:                 models.InvoiceStatusPending,
		DueDate:                time.Now().Add(7 * 24 * time.Hour),
		Items: []models.InvoiceItem{
			{Description: "Design work", Quantity: decimal.NewFromInt(5), Rate: decimal.RequireFromString("0.5"), Amount: decimal.RequireFromString("2.5")},
		},
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"zero connections", models.DatabaseConfig{Path: ":memory:", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"zero ping timeout", models.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tt.cfg); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestSeedPrices(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	prices, err := svc.ListPrices(ctx)
	if err != nil {
		t.Fatalf("ListPrices failed: %v", err)
	}
	if len(prices) != len(seedPrices) {
		t.Fatalf("Expected %d seeded prices, got %d", len(seedPrices), len(prices))
	}

	sol, err := svc.GetPrice(ctx, "SOL")
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if !sol.Price.Equal(decimal.RequireFromString("24.59")) {
		t.Errorf("Expected SOL seed price 24.59, got %s", sol.Price)
	}

	// Seeding again must not overwrite a refreshed quote
	if _, err := svc.UpsertPrice(ctx, models.CryptoPrice{Symbol: "SOL", Price: decimal.RequireFromString("150")}); err != nil {
		t.Fatalf("UpsertPrice failed: %v", err)
	}
	if err := svc.seedPrices(ctx); err != nil {
		t.Fatalf("seedPrices failed: %v", err)
	}
	sol, _ = svc.GetPrice(ctx, "SOL")
	if !sol.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected refreshed price to survive reseed, got %s", sol.Price)
	}
	if sol.Name != "Solana" {
		t.Errorf("Expected name to be kept on upsert without name, got %q", sol.Name)
	}
}
