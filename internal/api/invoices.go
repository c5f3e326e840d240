package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cryptopay-go/internal/kv"
	"cryptopay-go/internal/lifecycle"
	"cryptopay-go/internal/metrics"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// errNoLongerOverdue aborts a sweep update whose invoice changed underneath it.
var errNoLongerOverdue = errors.New("invoice no longer overdue")

func (s *BillingService) CreateInvoice(ctx context.Context, req models.CreateInvoiceRequest) (*models.Invoice, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	status := models.InvoiceStatus(req.Status)
	if status == "" {
		status = models.InvoiceStatusDraft
	}
	cryptoType := strings.ToUpper(strings.TrimSpace(req.CryptoType))
	if cryptoType == "" {
		cryptoType = s.defaultCryptoType
	}

	params := store.CreateInvoiceParams{
		InvoiceNumber:          req.InvoiceNumber,
		CreatorId:              user.Id,
		ClientId:               req.ClientId,
		CreatorWalletAddress:   user.WalletAddress,
		RecipientName:          strings.TrimSpace(req.RecipientName),
		RecipientWalletAddress: req.RecipientWalletAddress,
		Amount:                 req.Amount,
		FiatAmount:             nullDecimal(req.FiatAmount),
		CryptoAmount:           nullDecimal(req.CryptoAmount),
		CryptoType:             cryptoType,
		Description:            req.Description,
		Status:                 status,
		DueDate:                req.DueDate,
		Items:                  lifecycle.NormalizeItems(req.Items),
		Notes:                  req.Notes,
		Template:               req.Template,
		ConvertOnPayment:       req.ConvertOnPayment,
	}
	if req.IssueDate != nil {
		params.IssueDate = *req.IssueDate
	}

	if err := lifecycle.ValidateNewInvoice(&params, s.now(), s.cryptoTypes); err != nil {
		return nil, err
	}
	if params.ClientId != nil {
		if _, err := s.GetClient(ctx, *params.ClientId); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, store.NewValidationError("clientId", "unknown client")
			}
			return nil, err
		}
	}
	if !params.FiatAmount.Valid {
		params.FiatAmount = s.deriveFiat(ctx, params.Amount, params.CryptoType)
	}

	invoice, err := s.db.CreateInvoice(ctx, params)
	if err != nil {
		return nil, err
	}

	metrics.RecordInvoiceCreated(string(invoice.Status))
	s.mirrorInvoice(ctx, invoice)
	return invoice, nil
}

// deriveFiat prices an amount at the cached quote; unknown prices leave it unset.
func (s *BillingService) deriveFiat(ctx context.Context, amount decimal.Decimal, symbol string) decimal.NullDecimal {
	if symbol == "" {
		return decimal.NullDecimal{}
	}
	price, err := s.db.GetPrice(ctx, symbol)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("Unable to read price for fiat derivation", zap.String("symbol", symbol), zap.Error(err))
		}
		return decimal.NullDecimal{}
	}
	return lifecycle.DeriveFiat(amount, price.Price)
}

func (s *BillingService) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	_, invoice, err := s.authorizeInvoice(ctx, id)
	return invoice, err
}

// GetInvoiceByNumber answers from the mirror's number index and falls back to
// the relational store, repopulating the mirror on a miss.
func (s *BillingService) GetInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := s.lookupInvoiceByNumber(ctx, lifecycle.NormalizeInvoiceNumber(number))
	if err != nil {
		return nil, err
	}
	if !isParty(user, invoice) {
		return nil, ErrForbidden
	}
	return invoice, nil
}

func (s *BillingService) lookupInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	if s.mirror != nil {
		id, err := s.mirror.GetInvoiceIdByNumber(ctx, number)
		if err == nil {
			invoice, err := s.mirror.GetInvoice(ctx, id)
			if err == nil && invoice.InvoiceNumber == number {
				return invoice, nil
			}
		} else if !errors.Is(err, kv.ErrKeyNotFound) {
			metrics.RecordMirrorError("get_invoice_number")
			zap.L().Warn("Mirror lookup failed", zap.String("invoice_number", number), zap.Error(err))
		}
	}

	invoice, err := s.db.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	s.mirrorInvoice(ctx, invoice)
	return invoice, nil
}

// ListInvoices defaults the creator filter to the session user.
func (s *BillingService) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]models.Invoice, error) {
	filter, err := s.scopeInvoiceFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.db.ListInvoices(ctx, filter)
}

// UpdateInvoice edits billed terms while the invoice is draft or pending and
// moves its status through the lifecycle. Marking an invoice paid also files
// a completed payment record.
func (s *BillingService) UpdateInvoice(ctx context.Context, id int64, req models.UpdateInvoiceRequest) (*models.Invoice, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.db.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(user, current) {
		return nil, ErrForbidden
	}

	editsTerms := req.RecipientName != nil || req.RecipientWalletAddress != nil || req.Amount != nil ||
		req.DueDate != nil || req.Description != nil || req.Items != nil || req.Notes != nil || req.Template != nil
	if editsTerms && current.CreatorId != user.Id {
		return nil, ErrForbidden
	}
	if err := s.validateUpdate(req); err != nil {
		return nil, err
	}

	var target models.InvoiceStatus
	if req.Status != nil && models.InvoiceStatus(*req.Status) != current.Status {
		target = models.InvoiceStatus(*req.Status)
	}

	var fiat decimal.NullDecimal
	if req.Amount != nil {
		fiat = s.deriveFiat(ctx, *req.Amount, current.CryptoType)
	}

	now := s.now()
	updated, err := s.db.UpdateInvoice(ctx, id, func(invoice *models.Invoice) error {
		if editsTerms {
			if !lifecycle.Editable(invoice.Status) {
				return fmt.Errorf("invoice %d is %s: %w", invoice.Id, invoice.Status, ErrInvoiceLocked)
			}
			applyTerms(invoice, req)
			if req.Amount != nil {
				invoice.FiatAmount = fiat
			}
		}
		if req.TransactionHash != nil {
			invoice.TransactionHash = *req.TransactionHash
		}
		if target != "" {
			if err := lifecycle.Transition(invoice, target, now); err != nil {
				return err
			}
			if target == models.InvoiceStatusEscrowed {
				invoice.EscrowAccountAddress = lifecycle.EscrowAccountAddress(invoice.Id)
			}
		}
		return nil
	})
	if target != "" {
		metrics.RecordInvoiceTransition(string(current.Status), string(target), err == nil)
	}
	if err != nil {
		return nil, err
	}

	if target == models.InvoiceStatusPaid {
		s.filePayment(ctx, user, updated)
	}
	s.mirrorInvoice(ctx, updated)
	return updated, nil
}

func (s *BillingService) validateUpdate(req models.UpdateInvoiceRequest) error {
	ve := &store.ValidationError{}
	if req.Amount != nil && !req.Amount.GreaterThan(decimal.Zero) {
		ve.Add("amount", "must be greater than zero")
	}
	if req.DueDate != nil && !req.DueDate.After(s.now()) {
		ve.Add("dueDate", "must be in the future")
	}
	if req.RecipientName != nil && strings.TrimSpace(*req.RecipientName) == "" {
		ve.Add("recipientName", "is required")
	}
	if req.Status != nil && !models.InvoiceStatus(*req.Status).Valid() {
		ve.Add("status", fmt.Sprintf("unknown status %q", *req.Status))
	}
	return ve.OrNil()
}

func applyTerms(invoice *models.Invoice, req models.UpdateInvoiceRequest) {
	if req.RecipientName != nil {
		invoice.RecipientName = strings.TrimSpace(*req.RecipientName)
	}
	if req.RecipientWalletAddress != nil {
		invoice.RecipientWalletAddress = *req.RecipientWalletAddress
	}
	if req.Amount != nil {
		invoice.Amount = *req.Amount
	}
	if req.DueDate != nil {
		invoice.DueDate = req.DueDate.UTC()
	}
	if req.Description != nil {
		invoice.Description = *req.Description
	}
	if req.Items != nil {
		invoice.Items = lifecycle.NormalizeItems(*req.Items)
	}
	if req.Notes != nil {
		invoice.Notes = *req.Notes
	}
	if req.Template != nil {
		invoice.Template = *req.Template
	}
}

// filePayment records the legacy payment row for an invoice marked paid by hand.
func (s *BillingService) filePayment(ctx context.Context, user *models.User, invoice *models.Invoice) {
	invoiceId := invoice.Id
	_, err := s.db.CreatePayment(ctx, store.CreatePaymentParams{
		UserId:        user.Id,
		InvoiceId:     &invoiceId,
		Amount:        invoice.Amount,
		CryptoAmount:  invoice.CryptoAmount,
		CryptoType:    invoice.CryptoType,
		Status:        models.PaymentStatusCompleted,
		TransactionId: invoice.TransactionHash,
	})
	if err != nil {
		zap.L().Error("Failed to file payment for paid invoice", zap.Int64("invoice_id", invoice.Id), zap.Error(err))
	}
}

func isParty(user *models.User, invoice *models.Invoice) bool {
	if user.Id == invoice.CreatorId {
		return true
	}
	return user.WalletAddress != "" && user.WalletAddress == invoice.RecipientWalletAddress
}

// EscrowInvoice moves an invoice into the simulated escrow holding state.
func (s *BillingService) EscrowInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var from models.InvoiceStatus
	updated, err := s.db.UpdateInvoice(ctx, id, func(invoice *models.Invoice) error {
		if !isParty(user, invoice) {
			return ErrForbidden
		}
		from = invoice.Status
		if err := lifecycle.Transition(invoice, models.InvoiceStatusEscrowed, now); err != nil {
			return err
		}
		invoice.EscrowAccountAddress = lifecycle.EscrowAccountAddress(invoice.Id)
		return nil
	})
	if from != "" {
		metrics.RecordInvoiceTransition(string(from), string(models.InvoiceStatusEscrowed), err == nil)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("Invoice escrowed",
		zap.Int64("invoice_id", id),
		zap.String("escrow_account", updated.EscrowAccountAddress))
	s.mirrorInvoice(ctx, updated)
	return updated, nil
}

// ReleaseInvoice pays an escrowed invoice out to its creator.
func (s *BillingService) ReleaseInvoice(ctx context.Context, id int64) (*models.TransactionResult, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := s.db.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(user, invoice) {
		return nil, ErrForbidden
	}
	if invoice.Status != models.InvoiceStatusEscrowed {
		metrics.RecordInvoiceTransition(string(invoice.Status), string(models.InvoiceStatusPaid), false)
		return nil, &store.TransitionError{InvoiceId: id, From: invoice.Status, To: models.InvoiceStatusPaid}
	}

	now := s.now()
	return s.recordTransaction(ctx, store.CreateTransactionParams{
		InvoiceId:              &invoice.Id,
		SenderWalletAddress:    escrowSource(invoice),
		RecipientWalletAddress: invoice.CreatorWalletAddress,
		Amount:                 invoice.Amount,
		FiatAmount:             invoice.FiatAmount,
		TransactionType:        models.TransactionTypePayment,
		Status:                 models.TransactionStatusSuccess,
		TransactionHash:        lifecycle.ReleaseReference(invoice.Id, now),
		Memo:                   "Escrow release",
		Timestamp:              now,
	})
}

// RefundInvoice returns the funds of a paid or escrowed invoice to the payer.
func (s *BillingService) RefundInvoice(ctx context.Context, id int64) (*models.TransactionResult, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := s.db.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(user, invoice) {
		return nil, ErrForbidden
	}

	sender := invoice.CreatorWalletAddress
	if invoice.Status == models.InvoiceStatusEscrowed {
		sender = escrowSource(invoice)
	}

	now := s.now()
	return s.recordTransaction(ctx, store.CreateTransactionParams{
		InvoiceId:              &invoice.Id,
		SenderWalletAddress:    sender,
		RecipientWalletAddress: invoice.RecipientWalletAddress,
		Amount:                 invoice.Amount,
		FiatAmount:             invoice.FiatAmount,
		TransactionType:        models.TransactionTypeRefund,
		Status:                 models.TransactionStatusSuccess,
		TransactionHash:        lifecycle.RefundReference(invoice.Id, now),
		Memo:                   "Invoice refund",
		Timestamp:              now,
	})
}

func escrowSource(invoice *models.Invoice) string {
	if invoice.EscrowAccountAddress != "" {
		return invoice.EscrowAccountAddress
	}
	return lifecycle.EscrowAccountAddress(invoice.Id)
}

// SweepOverdue marks every pending invoice past its due date as overdue.
func (s *BillingService) SweepOverdue(ctx context.Context) (*models.SweepResult, error) {
	pending, err := s.db.ListInvoices(ctx, store.InvoiceFilter{Status: models.InvoiceStatusPending})
	if err != nil {
		return nil, fmt.Errorf("unable to list pending invoices: %w", err)
	}

	now := s.now()
	result := &models.SweepResult{Checked: len(pending), MarkedOverdue: []int64{}}
	for i := range pending {
		if !lifecycle.IsOverdue(&pending[i], now) {
			continue
		}

		updated, err := s.db.UpdateInvoice(ctx, pending[i].Id, func(invoice *models.Invoice) error {
			if !lifecycle.IsOverdue(invoice, now) {
				return errNoLongerOverdue
			}
			return lifecycle.Transition(invoice, models.InvoiceStatusOverdue, now)
		})
		if err != nil {
			if errors.Is(err, errNoLongerOverdue) || errors.Is(err, store.ErrConcurrentModification) {
				continue
			}
			zap.L().Error("Failed to mark invoice overdue", zap.Int64("invoice_id", pending[i].Id), zap.Error(err))
			continue
		}

		metrics.RecordInvoiceTransition(string(models.InvoiceStatusPending), string(models.InvoiceStatusOverdue), true)
		result.MarkedOverdue = append(result.MarkedOverdue, updated.Id)
		s.mirrorInvoice(ctx, updated)
	}
	return result, nil
}

// LedgerBalance reports what the ledger sink holds for an invoice.
func (s *BillingService) LedgerBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	_, invoice, err := s.authorizeInvoice(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return s.ledger.SettledBalance(ctx, invoice.Id, invoice.CryptoType)
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
