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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

type Service struct {
	db  *sql.DB
	now func() time.Time
}

// seedPrices are the quotes a fresh database starts with, before the first feed refresh
var seedPrices = []models.CryptoPrice{
	{Symbol: "BTC", Name: "Bitcoin", Price: decimal.RequireFromString("26543.12"), PriceChange24h: decimal.RequireFromString("1.2")},
	{Symbol: "ETH", Name: "Ethereum", Price: decimal.RequireFromString("1834.67"), PriceChange24h: decimal.RequireFromString("3.5")},
	{Symbol: "USDC", Name: "USD Coin", Price: decimal.RequireFromString("1.00"), PriceChange24h: decimal.RequireFromString("0.0")},
	{Symbol: "SOL", Name: "Solana", Price: decimal.RequireFromString("24.59"), PriceChange24h: decimal.RequireFromString("2.8")},
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := NewServiceFromDB(db)
	if err := service.initSchema(ctx, cfg); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// NewServiceFromDB wraps an already opened handle without touching the schema.
func NewServiceFromDB(db *sql.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context, cfg models.DatabaseConfig) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		wallet_address TEXT UNIQUE,
		role TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		email TEXT NOT NULL DEFAULT '',
		company_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clients_user ON clients(user_id);

	CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		address TEXT NOT NULL UNIQUE,
		network TEXT NOT NULL DEFAULT 'solana',
		label TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wallets_user ON wallets(user_id);

	CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_number TEXT NOT NULL UNIQUE,
		creator_id INTEGER NOT NULL REFERENCES users(id),
		client_id INTEGER REFERENCES clients(id),
		creator_wallet_address TEXT NOT NULL DEFAULT '',
		recipient_name TEXT NOT NULL,
		recipient_wallet_address TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		fiat_amount TEXT,
		crypto_amount TEXT,
		crypto_type TEXT NOT NULL DEFAULT 'SOL',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft'
			CHECK (status IN ('draft', 'pending', 'escrowed', 'paid', 'overdue', 'refunded')),
		due_date TIMESTAMP NOT NULL,
		issue_date TIMESTAMP NOT NULL,
		payment_date TIMESTAMP,
		refund_date TIMESTAMP,
		escrow_date TIMESTAMP,
		transaction_hash TEXT NOT NULL DEFAULT '',
		escrow_account_address TEXT NOT NULL DEFAULT '',
		items TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		template TEXT NOT NULL DEFAULT '',
		convert_on_payment BOOLEAN NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_creator ON invoices(creator_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
	CREATE INDEX IF NOT EXISTS idx_invoices_client ON invoices(client_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id INTEGER REFERENCES invoices(id),
		sender_wallet_address TEXT NOT NULL,
		recipient_wallet_address TEXT NOT NULL,
		amount TEXT NOT NULL,
		fiat_amount TEXT,
		transaction_type TEXT NOT NULL CHECK (transaction_type IN ('payment', 'refund', 'conversion')),
		status TEXT NOT NULL CHECK (status IN ('pending', 'success', 'failed')),
		transaction_hash TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_invoice ON transactions(invoice_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_wallet_address);
	CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions(recipient_wallet_address);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_hash ON transactions(transaction_hash)
		WHERE transaction_hash != '';

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		invoice_id INTEGER REFERENCES invoices(id),
		amount TEXT NOT NULL,
		crypto_amount TEXT,
		crypto_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
		transaction_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id);
	CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);

	CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts(user_id);

	CREATE TABLE IF NOT EXISTS crypto_prices (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		price_change_24h TEXT NOT NULL DEFAULT '0',
		last_updated TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bridge_transfers (
		id TEXT PRIMARY KEY,
		user_id INTEGER,
		from_chain TEXT NOT NULL,
		to_chain TEXT NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		token_address TEXT NOT NULL DEFAULT '',
		token_symbol TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_hash TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bridge_transfers_user ON bridge_transfers(user_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	if cfg.SeedPrices {
		if err := s.seedPrices(ctx); err != nil {
			return err
		}
	}

	// Insert demo users for local testing if configured to do so
	if cfg.SeedDemoUsers {
		s.seedDemoUsers(ctx)
	} else {
		zap.L().Info("Skipping demo user creation (CREATE_DEMO_USERS=false)")
	}

	return nil
}

// seedPrices inserts the default quotes only where no row exists yet.
func (s *Service) seedPrices(ctx context.Context) error {
	for _, price := range seedPrices {
		if _, err := s.GetPrice(ctx, price.Symbol); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		price.LastUpdated = s.now()
		if _, err := s.UpsertPrice(ctx, price); err != nil {
			return fmt.Errorf("unable to seed price %s: %w", price.Symbol, err)
		}
		zap.L().Info("Seeded price", zap.String("symbol", price.Symbol), zap.String("price", price.Price.String()))
	}
	return nil
}

func (s *Service) seedDemoUsers(ctx context.Context) {
	users := []store.CreateUserParams{
		{Username: "alice", Role: models.RoleFreelancer, Email: "alice@example.com", CompanyName: "Alice Designs"},
		{Username: "bob", Role: models.RoleClient, Email: "bob@example.com", CompanyName: "Bob Industries"},
	}

	for _, params := range users {
		user, err := s.CreateUser(ctx, params)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateUser) {
				continue
			}
			zap.L().Error("Failed to insert demo user", zap.String("username", params.Username), zap.Error(err))
			continue
		}
		zap.L().Info("Demo user created", zap.Int64("id", user.Id), zap.String("username", user.Username))
	}
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func int64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time.UTC()
	return &v
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
