package api

import (
	"context"
	"errors"
	"fmt"

	"cryptopay-go/internal/bridge"
	"cryptopay-go/internal/kv"
	"cryptopay-go/internal/metrics"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/solana"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var defaultAirdropSol = decimal.NewFromInt(1)

func (s *BillingService) WalletBalance(ctx context.Context, address string) (*models.WalletBalance, error) {
	if err := solana.ValidateAddress(address); err != nil {
		return nil, store.NewValidationError("address", "is not a valid Solana address")
	}
	if s.chain == nil {
		return nil, fmt.Errorf("solana rpc: %w", ErrUnavailable)
	}
	return s.chain.Balance(ctx, address)
}

func (s *BillingService) Airdrop(ctx context.Context, req models.AirdropRequest) (*models.AirdropResult, error) {
	if s.chain == nil {
		return nil, fmt.Errorf("solana rpc: %w", ErrUnavailable)
	}
	amount := req.Amount
	if amount.IsZero() {
		amount = defaultAirdropSol
	}

	signature, err := s.chain.Airdrop(ctx, req.Address, amount)
	if err != nil {
		return nil, err
	}
	return &models.AirdropResult{Address: req.Address, Amount: amount, Signature: signature}, nil
}

// ---------- cross-chain transfers (simulation) ----------

func (s *BillingService) requireBridge() error {
	if s.bridge == nil {
		return fmt.Errorf("bridge simulator: %w", ErrUnavailable)
	}
	return nil
}

func (s *BillingService) Transfer(ctx context.Context, req models.TransferRequest) (*models.BridgeTransfer, error) {
	if err := s.requireBridge(); err != nil {
		return nil, err
	}
	return s.bridge.Transfer(ctx, sessionUserId(ctx), req)
}

// GetTransfer reads the mirror first and falls back to the relational store.
func (s *BillingService) GetTransfer(ctx context.Context, id string) (*models.BridgeTransfer, error) {
	if err := s.requireBridge(); err != nil {
		return nil, err
	}

	if s.mirror != nil {
		transfer, err := s.mirror.GetTransfer(ctx, id)
		if err == nil {
			return transfer, nil
		}
		if !errors.Is(err, kv.ErrKeyNotFound) {
			metrics.RecordMirrorError("get_transfer")
			zap.L().Warn("Mirror lookup failed", zap.String("transfer_id", id), zap.Error(err))
		}
	}

	transfer, err := s.bridge.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.mirror != nil {
		if err := s.mirror.PutTransfer(ctx, *transfer); err != nil {
			metrics.RecordMirrorError("put_transfer")
		}
	}
	return transfer, nil
}

func (s *BillingService) ListTransfers(ctx context.Context) ([]models.BridgeTransfer, error) {
	if err := s.requireBridge(); err != nil {
		return nil, err
	}
	return s.bridge.List(ctx, sessionUserId(ctx))
}

func (s *BillingService) EstimateFees(fromChain, toChain string, amount decimal.Decimal) (*models.FeeEstimate, error) {
	return bridge.EstimateFees(fromChain, toChain, amount)
}

// TransferSettled is installed as the simulator's settlement hook.
func TransferSettled(transfer models.BridgeTransfer) {
	metrics.RecordBridgeTransfer(string(transfer.Status))
}

// ---------- mirror reads ----------

// MirrorInvoices lists invoices from the key-value mirror, falling back to
// the relational store when the mirror is unavailable.
func (s *BillingService) MirrorInvoices(ctx context.Context, filter store.InvoiceFilter) ([]models.Invoice, error) {
	filter, err := s.scopeInvoiceFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.mirror != nil {
		invoices, err := s.mirror.ListInvoices(ctx, filter)
		if err == nil {
			return invoices, nil
		}
		metrics.RecordMirrorError("list_invoices")
		zap.L().Warn("Mirror list failed, reading relational store", zap.Error(err))
	}
	return s.db.ListInvoices(ctx, filter)
}

func (s *BillingService) MirrorInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := s.readMirroredInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(user, invoice) {
		return nil, ErrForbidden
	}
	return invoice, nil
}

func (s *BillingService) readMirroredInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	if s.mirror != nil {
		invoice, err := s.mirror.GetInvoice(ctx, id)
		if err == nil {
			return invoice, nil
		}
		if !errors.Is(err, kv.ErrKeyNotFound) {
			metrics.RecordMirrorError("get_invoice")
		}
	}

	invoice, err := s.db.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mirrorInvoice(ctx, invoice)
	return invoice, nil
}
