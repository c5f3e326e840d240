package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cryptopay-go/internal/api"
	"cryptopay-go/internal/bridge"
	"cryptopay-go/internal/database"
	"cryptopay-go/internal/formance"
	"cryptopay-go/internal/kv"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/prices"
	"cryptopay-go/internal/solana"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

// Services bundles everything the server and the maintenance commands share.
type Services struct {
	DbService *database.Service
	Mirror    *kv.Mirror
	Ledger    formance.LedgerSink
	Bridge    *bridge.Simulator
	Billing   *api.BillingService
	Assets    []models.Asset
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the store and mirror, connects the optional
// collaborators and builds the billing service on top of them.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	services := &Services{}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services.DbService = dbService

	assets, err := LoadAssetConfig(cfg.Prices.AssetsFile)
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to load asset config: %w", err)
	}
	services.Assets = assets

	zap.L().Info("Opening kv mirror", zap.String("backend", cfg.KV.Backend))
	backend, err := kv.Open(ctx, cfg.KV)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Mirror = kv.NewMirror(backend)

	if cfg.KV.RebuildOnStart {
		stats, err := services.Mirror.Rebuild(ctx, dbService)
		if err != nil {
			// The mirror is derived; reads fall back to the store
			zap.L().Warn("Mirror rebuild failed", zap.Error(err))
		} else {
			zap.L().Info("Mirror rebuilt",
				zap.Int("invoices", stats.Invoices),
				zap.Int("transactions", stats.Transactions),
				zap.Int("transfers", stats.Transfers))
		}
	}

	services.Ledger, err = initializeLedger(ctx, cfg.Formance)
	if err != nil {
		services.Close()
		return nil, err
	}

	chain, err := solana.NewClient(cfg.Solana)
	if err != nil {
		services.Close()
		return nil, err
	}

	feed, err := prices.NewClient(cfg.Prices, assets)
	if err != nil {
		services.Close()
		return nil, err
	}

	services.Bridge = bridge.NewSimulator(dbService, cfg.Bridge,
		bridge.WithMirror(services.Mirror),
		bridge.WithSettledHook(api.TransferSettled))

	services.Billing = api.NewBillingService(api.Config{
		Store:             dbService,
		Mirror:            services.Mirror,
		Ledger:            services.Ledger,
		Chain:             chain,
		Prices:            feed,
		Bridge:            services.Bridge,
		Assets:            assets,
		DefaultCryptoType: cfg.Invoices.DefaultCryptoType,
	})

	return services, nil
}

func initializeLedger(ctx context.Context, cfg models.FormanceConfig) (formance.LedgerSink, error) {
	if cfg.StackURL == "" {
		zap.L().Info("Formance ledger not configured, settlements stay local")
		return formance.NoopSink{}, nil
	}

	zap.L().Info("Connecting to Formance ledger",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))
	ledger, err := formance.NewService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize formance ledger: %w", err)
	}
	return ledger, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for the maintenance commands that never reach the network.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// Close releases resources in reverse order of initialisation. It is safe on
// a partially initialised value.
func (cs *Services) Close() {
	if cs.Bridge != nil {
		cs.Bridge.Close()
	}
	if cs.Ledger != nil {
		cs.Ledger.Close()
	}
	if cs.Mirror != nil {
		if err := cs.Mirror.Close(); err != nil {
			zap.L().Warn("Failed to close kv mirror", zap.Error(err))
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
