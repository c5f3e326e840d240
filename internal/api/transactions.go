package api

import (
	"context"
	"errors"
	"strings"

	"cryptopay-go/internal/lifecycle"
	"cryptopay-go/internal/metrics"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/solana"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// recordTransaction stores a transaction and runs the derived writes for it
// and for the invoice it settled.
func (s *BillingService) recordTransaction(ctx context.Context, params store.CreateTransactionParams) (*models.TransactionResult, error) {
	var from models.InvoiceStatus
	if params.InvoiceId != nil {
		if _, settles := lifecycle.TargetStatus(params.TransactionType, params.Status); settles {
			if invoice, err := s.db.GetInvoice(ctx, *params.InvoiceId); err == nil {
				from = invoice.Status
			}
		}
	}

	tx, invoice, err := s.db.CreateTransaction(ctx, params)
	if err != nil {
		var te *store.TransitionError
		if errors.As(err, &te) {
			metrics.RecordInvoiceTransition(string(te.From), string(te.To), false)
		}
		return nil, err
	}

	metrics.RecordTransaction(string(tx.TransactionType), string(tx.Status))
	if invoice != nil && from != "" && invoice.Status != from {
		metrics.RecordInvoiceTransition(string(from), string(invoice.Status), true)
	}

	s.mirrorTransaction(ctx, tx)
	s.mirrorInvoice(ctx, invoice)
	s.recordLedger(ctx, tx, invoice)

	zap.L().Info("Transaction processed",
		zap.Int64("transaction_id", tx.Id),
		zap.String("type", string(tx.TransactionType)),
		zap.String("status", string(tx.Status)))
	return &models.TransactionResult{Transaction: tx, Invoice: invoice}, nil
}

// CreateTransaction records a transaction. One linked to an invoice needs a
// party to that invoice; an unlinked one must involve the caller's wallet.
func (s *BillingService) CreateTransaction(ctx context.Context, req models.CreateTransactionRequest) (*models.TransactionResult, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	var invoice *models.Invoice
	if req.InvoiceId != nil {
		if _, invoice, err = s.authorizeInvoice(ctx, *req.InvoiceId); err != nil {
			return nil, err
		}
	} else if !ownsWallet(user, req.SenderWalletAddress) && !ownsWallet(user, req.RecipientWalletAddress) {
		return nil, ErrForbidden
	}

	if err := lifecycle.ValidateAmount("amount", req.Amount); err != nil {
		return nil, err
	}

	status := models.TransactionStatus(req.Status)
	if status == "" {
		status = models.TransactionStatusSuccess
	}

	fiat := nullDecimal(req.FiatAmount)
	if !fiat.Valid && invoice != nil {
		fiat = s.deriveFiat(ctx, req.Amount, invoice.CryptoType)
	}

	return s.recordTransaction(ctx, store.CreateTransactionParams{
		InvoiceId:              req.InvoiceId,
		SenderWalletAddress:    req.SenderWalletAddress,
		RecipientWalletAddress: req.RecipientWalletAddress,
		Amount:                 req.Amount,
		FiatAmount:             fiat,
		TransactionType:        models.TransactionType(req.TransactionType),
		Status:                 status,
		TransactionHash:        req.TransactionHash,
		Signature:              req.Signature,
		Memo:                   req.Memo,
		Timestamp:              s.now(),
	})
}

func (s *BillingService) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTransaction(ctx, user, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions defaults the wallet filter to the session wallet. Other
// wallets are off limits; an invoice filter needs a party to that invoice.
func (s *BillingService) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if filter.InvoiceId != nil {
		if _, _, err := s.authorizeInvoice(ctx, *filter.InvoiceId); err != nil {
			return nil, err
		}
	}
	if filter.WalletAddress != "" && !ownsWallet(user, filter.WalletAddress) {
		return nil, ErrForbidden
	}
	if filter.WalletAddress == "" && filter.InvoiceId == nil {
		if user.WalletAddress == "" {
			return []models.Transaction{}, nil
		}
		filter.WalletAddress = user.WalletAddress
	}
	return s.db.ListTransactions(ctx, filter)
}

// UpdateTransactionStatus resolves a pending transaction, settling its invoice
// when it succeeds.
func (s *BillingService) UpdateTransactionStatus(ctx context.Context, id int64, req models.UpdateTransactionStatusRequest) (*models.TransactionResult, error) {
	if _, err := s.GetTransaction(ctx, id); err != nil {
		return nil, err
	}
	status := models.TransactionStatus(req.Status)

	tx, invoice, err := s.db.UpdateTransactionStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.mirrorTransaction(ctx, tx)
	s.mirrorInvoice(ctx, invoice)
	s.recordLedger(ctx, tx, invoice)
	return &models.TransactionResult{Transaction: tx, Invoice: invoice}, nil
}

// CreatePayment files a legacy payment record. A completed payment against an
// invoice is also recorded as a payment transaction, which settles the invoice;
// if the invoice cannot be paid no payment row is written.
func (s *BillingService) CreatePayment(ctx context.Context, req models.CreatePaymentRequest) (*models.Payment, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.ValidateAmount("amount", req.Amount); err != nil {
		return nil, err
	}

	status := models.PaymentStatus(req.Status)
	if status == "" {
		status = models.PaymentStatusPending
	}

	var invoice *models.Invoice
	if req.InvoiceId != nil {
		if _, invoice, err = s.authorizeInvoice(ctx, *req.InvoiceId); err != nil {
			return nil, err
		}
	}

	transactionId := req.TransactionId
	if status == models.PaymentStatusCompleted && invoice != nil {
		now := s.now()
		if transactionId == "" {
			transactionId = lifecycle.PaymentReference(invoice.Id, now)
		}
		_, err = s.recordTransaction(ctx, store.CreateTransactionParams{
			InvoiceId:              &invoice.Id,
			SenderWalletAddress:    user.WalletAddress,
			RecipientWalletAddress: invoice.CreatorWalletAddress,
			Amount:                 req.Amount,
			FiatAmount:             s.deriveFiat(ctx, req.Amount, invoice.CryptoType),
			TransactionType:        models.TransactionTypePayment,
			Status:                 models.TransactionStatusSuccess,
			TransactionHash:        transactionId,
			Timestamp:              now,
		})
		if err != nil {
			return nil, err
		}
	}

	return s.db.CreatePayment(ctx, store.CreatePaymentParams{
		UserId:        user.Id,
		InvoiceId:     req.InvoiceId,
		Amount:        req.Amount,
		CryptoAmount:  nullDecimal(req.CryptoAmount),
		CryptoType:    strings.ToUpper(req.CryptoType),
		Status:        status,
		TransactionId: transactionId,
	})
}

func (s *BillingService) ListPayments(ctx context.Context, invoiceId *int64) ([]models.Payment, error) {
	if invoiceId != nil {
		if _, _, err := s.authorizeInvoice(ctx, *invoiceId); err != nil {
			return nil, err
		}
		return s.db.ListPaymentsByInvoice(ctx, *invoiceId)
	}
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.ListPayments(ctx, user.Id)
}

// SolanaPayment records an on-chain payment for an invoice. With a chain
// client configured the signature is checked first; an unconfirmed signature
// is stored as pending and settles the invoice once its status is updated.
func (s *BillingService) SolanaPayment(ctx context.Context, req models.SolanaPaymentRequest) (*models.TransactionResult, error) {
	_, invoice, err := s.authorizeInvoice(ctx, req.InvoiceId)
	if err != nil {
		return nil, err
	}

	ve := &store.ValidationError{}
	if err := solana.ValidateAddress(req.SenderWalletAddress); err != nil {
		ve.Add("senderWalletAddress", "is not a valid Solana address")
	}
	if !req.Amount.GreaterThan(decimal.Zero) {
		ve.Add("amount", "must be greater than zero")
	} else if req.Amount.LessThan(invoice.Amount) {
		ve.Add("amount", "must cover the invoice amount of "+invoice.Amount.String())
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	if !lifecycle.CanTransition(invoice.Status, models.InvoiceStatusPaid) {
		metrics.RecordInvoiceTransition(string(invoice.Status), string(models.InvoiceStatusPaid), false)
		return nil, &store.TransitionError{InvoiceId: invoice.Id, From: invoice.Status, To: models.InvoiceStatusPaid}
	}

	now := s.now()
	status := models.TransactionStatusSuccess
	hash := req.Signature
	if hash == "" {
		hash = lifecycle.PaymentReference(invoice.Id, now)
	} else if s.chain != nil {
		status, err = s.chain.Confirm(ctx, req.Signature)
		switch {
		case errors.Is(err, solana.ErrUnknownSignature):
			zap.L().Info("Signature not yet visible on chain, recording as pending",
				zap.String("signature", req.Signature))
		case err != nil:
			return nil, err
		}
		if status == models.TransactionStatusFailed {
			zap.L().Warn("Payment signature failed on chain",
				zap.Int64("invoice_id", invoice.Id),
				zap.String("signature", req.Signature))
		}
	}

	recipient := invoice.CreatorWalletAddress
	if recipient == "" {
		if creator, err := s.db.GetUserById(ctx, invoice.CreatorId); err == nil {
			recipient = creator.WalletAddress
		}
	}

	return s.recordTransaction(ctx, store.CreateTransactionParams{
		InvoiceId:              &invoice.Id,
		SenderWalletAddress:    req.SenderWalletAddress,
		RecipientWalletAddress: recipient,
		Amount:                 req.Amount,
		FiatAmount:             s.deriveFiat(ctx, req.Amount, "SOL"),
		TransactionType:        models.TransactionTypePayment,
		Status:                 status,
		TransactionHash:        hash,
		Signature:              req.Signature,
		Memo:                   req.Memo,
		Timestamp:              now,
	})
}
