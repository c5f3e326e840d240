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

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptopay-go/internal/bridge"
	"cryptopay-go/internal/formance"
	"cryptopay-go/internal/kv"
	"cryptopay-go/internal/metrics"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/prices"
	"cryptopay-go/internal/solana"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

var (
	ErrUnauthorized  = errors.New("authentication required")
	ErrForbidden     = errors.New("not permitted for this user")
	ErrInvoiceLocked = errors.New("invoice is no longer editable")
	ErrUnavailable   = errors.New("service not configured")
)

const ledgerTimeout = 10 * time.Second

// Config wires the collaborators of a BillingService. Only Store is required.
type Config struct {
	Store             store.Store
	Mirror            *kv.Mirror
	Ledger            formance.LedgerSink
	Chain             solana.Chain
	Prices            prices.Feed
	Bridge            *bridge.Simulator
	Assets            []models.Asset
	DefaultCryptoType string
	Now               func() time.Time
}

// BillingService holds the invoicing and payment operations behind the REST API.
type BillingService struct {
	db                store.Store
	mirror            *kv.Mirror
	ledger            formance.LedgerSink
	chain             solana.Chain
	feed              prices.Feed
	bridge            *bridge.Simulator
	assets            []models.Asset
	cryptoTypes       map[string]bool
	defaultCryptoType string
	now               func() time.Time
}

func NewBillingService(cfg Config) *BillingService {
	s := &BillingService{
		db:                cfg.Store,
		mirror:            cfg.Mirror,
		ledger:            cfg.Ledger,
		chain:             cfg.Chain,
		feed:              cfg.Prices,
		bridge:            cfg.Bridge,
		assets:            cfg.Assets,
		defaultCryptoType: strings.ToUpper(cfg.DefaultCryptoType),
		now:               cfg.Now,
	}
	if s.ledger == nil {
		s.ledger = formance.NoopSink{}
	}
	if len(s.assets) == 0 {
		s.assets = models.DefaultAssets
	}
	s.cryptoTypes = models.AssetSymbols(s.assets)
	if s.defaultCryptoType == "" {
		s.defaultCryptoType = "SOL"
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *BillingService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ResolveSession maps the caller's wallet address or user id onto a session.
// Unknown callers get an anonymous session carrying the wallet they presented.
func (s *BillingService) ResolveSession(ctx context.Context, walletAddress string, userId int64) (*models.Session, error) {
	session := &models.Session{WalletAddress: walletAddress}

	var user *models.User
	var err error
	switch {
	case walletAddress != "":
		user, err = s.db.GetUserByWallet(ctx, walletAddress)
	case userId > 0:
		user, err = s.db.GetUserById(ctx, userId)
	default:
		return session, nil
	}

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return session, nil
		}
		return nil, err
	}
	session.User = user
	if session.WalletAddress == "" {
		session.WalletAddress = user.WalletAddress
	}
	return session, nil
}

func requireUser(ctx context.Context) (*models.User, error) {
	session := models.SessionFromContext(ctx)
	if session == nil || session.User == nil {
		return nil, ErrUnauthorized
	}
	return session.User, nil
}

func ownsWallet(user *models.User, address string) bool {
	return address != "" && address == user.WalletAddress
}

// authorizeInvoice loads an invoice the session user is a party to.
func (s *BillingService) authorizeInvoice(ctx context.Context, id int64) (*models.User, *models.Invoice, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	invoice, err := s.db.GetInvoice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !isParty(user, invoice) {
		return nil, nil, ErrForbidden
	}
	return user, invoice, nil
}

// authorizeTransaction allows parties to the linked invoice, or the sender or
// recipient wallet of an unlinked transaction.
func (s *BillingService) authorizeTransaction(ctx context.Context, user *models.User, tx *models.Transaction) error {
	if tx.InvoiceId != nil {
		_, _, err := s.authorizeInvoice(ctx, *tx.InvoiceId)
		return err
	}
	if ownsWallet(user, tx.SenderWalletAddress) || ownsWallet(user, tx.RecipientWalletAddress) {
		return nil
	}
	return ErrForbidden
}

// scopeInvoiceFilter restricts an invoice listing to the session user. A
// creator filter must name the caller and a client filter one of their clients.
func (s *BillingService) scopeInvoiceFilter(ctx context.Context, filter store.InvoiceFilter) (store.InvoiceFilter, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return filter, err
	}
	if filter.CreatorId != nil && *filter.CreatorId != user.Id {
		return filter, ErrForbidden
	}
	if filter.ClientId != nil {
		if _, err := s.GetClient(ctx, *filter.ClientId); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return filter, ErrForbidden
			}
			return filter, err
		}
	}
	if filter.CreatorId == nil && filter.ClientId == nil {
		filter.CreatorId = &user.Id
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, store.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	return filter, nil
}

func sessionUserId(ctx context.Context) *int64 {
	session := models.SessionFromContext(ctx)
	if session == nil || session.User == nil {
		return nil
	}
	id := session.User.Id
	return &id
}

// RebuildMirror regenerates the key-value mirror from the relational store.
func (s *BillingService) RebuildMirror(ctx context.Context) (kv.RebuildStats, error) {
	if s.mirror == nil {
		return kv.RebuildStats{}, ErrUnavailable
	}
	return s.mirror.Rebuild(ctx, s.db)
}

// ---------- derived writes ----------

// mirrorInvoice refreshes the cached copy. The relational row is authoritative,
// so a failure here only degrades mirror reads.
func (s *BillingService) mirrorInvoice(ctx context.Context, invoice *models.Invoice) {
	if s.mirror == nil || invoice == nil {
		return
	}
	if err := s.mirror.PutInvoice(ctx, *invoice); err != nil {
		metrics.RecordMirrorError("put_invoice")
		zap.L().Warn("Failed to mirror invoice", zap.Int64("invoice_id", invoice.Id), zap.Error(err))
	}
}

func (s *BillingService) mirrorTransaction(ctx context.Context, tx *models.Transaction) {
	if s.mirror == nil || tx == nil {
		return
	}
	if err := s.mirror.PutTransaction(ctx, *tx); err != nil {
		metrics.RecordMirrorError("put_transaction")
		zap.L().Warn("Failed to mirror transaction", zap.Int64("transaction_id", tx.Id), zap.Error(err))
	}
}

func (s *BillingService) recordLedger(ctx context.Context, tx *models.Transaction, invoice *models.Invoice) {
	if tx == nil || invoice == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	defer cancel()

	if err := s.ledger.RecordSettlement(ctx, *tx, invoice); err != nil {
		metrics.RecordLedgerError()
		zap.L().Error("Failed to record settlement in ledger",
			zap.Int64("transaction_id", tx.Id),
			zap.Int64("invoice_id", invoice.Id),
			zap.Error(err))
	}
}
