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
	"strings"

	"cryptopay-go/internal/lifecycle"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var invoiceId sql.NullInt64
	var txType, status string

	err := row.Scan(&t.Id, &invoiceId, &t.SenderWalletAddress, &t.RecipientWalletAddress, &t.Amount, &t.FiatAmount,
		&txType, &status, &t.TransactionHash, &t.Signature, &t.Memo, &t.Timestamp)
	if err != nil {
		return nil, err
	}

	t.InvoiceId = int64Ptr(invoiceId)
	t.TransactionType = models.TransactionType(txType)
	t.Status = models.TransactionStatus(status)
	return &t, nil
}

// CreateTransaction records a transaction and, when it settles a linked
// invoice, moves the invoice through the lifecycle in the same database
// transaction. A rejected status change aborts the insert.
func (s *Service) CreateTransaction(ctx context.Context, p store.CreateTransactionParams) (*models.Transaction, *models.Invoice, error) {
	zap.L().Info("Processing transaction",
		zap.String("type", string(p.TransactionType)),
		zap.String("status", string(p.Status)),
		zap.String("amount", p.Amount.String()),
		zap.String("transaction_hash", p.TransactionHash))

	timestamp := p.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}

	// Start database transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Check for duplicate on-chain hash
	if p.TransactionHash != "" {
		var existingId int64
		err := tx.QueryRowContext(ctx, queryCheckDuplicateTransaction, p.TransactionHash).Scan(&existingId)
		if err == nil {
			zap.L().Warn("Duplicate transaction hash detected, skipping",
				zap.String("transaction_hash", p.TransactionHash),
				zap.Int64("existing_id", existingId))
			return nil, nil, fmt.Errorf("%w: transaction_hash %s already recorded", store.ErrDuplicateTransaction, p.TransactionHash)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("failed to check for duplicate transaction: %w", err)
		}
	}

	record := &models.Transaction{
		InvoiceId:              p.InvoiceId,
		SenderWalletAddress:    p.SenderWalletAddress,
		RecipientWalletAddress: p.RecipientWalletAddress,
		Amount:                 p.Amount,
		FiatAmount:             p.FiatAmount,
		TransactionType:        p.TransactionType,
		Status:                 p.Status,
		TransactionHash:        p.TransactionHash,
		Signature:              p.Signature,
		Memo:                   p.Memo,
		Timestamp:              timestamp.UTC(),
	}

	var invoice *models.Invoice
	if p.InvoiceId != nil {
		invoice, err = s.settleInvoiceTx(ctx, tx, *p.InvoiceId, record)
		if err != nil {
			return nil, nil, err
		}
	}

	result, err := tx.ExecContext(ctx, queryInsertTransaction,
		nullInt64(record.InvoiceId), record.SenderWalletAddress, record.RecipientWalletAddress, record.Amount,
		record.FiatAmount, string(record.TransactionType), string(record.Status), record.TransactionHash,
		record.Signature, record.Memo, record.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: transaction_hash %s already recorded", store.ErrDuplicateTransaction, p.TransactionHash)
		}
		return nil, nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	record.Id, err = result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read transaction id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Transaction recorded",
		zap.Int64("transaction_id", record.Id),
		zap.String("type", string(record.TransactionType)),
		zap.Bool("invoice_linked", invoice != nil))

	if invoice != nil {
		invoice, err = s.GetInvoice(ctx, invoice.Id)
		if err != nil {
			return record, nil, err
		}
	}
	return record, invoice, nil
}

// settleInvoiceTx applies the lifecycle side effect of a transaction to its
// invoice. The invoice is returned whether or not it changed.
func (s *Service) settleInvoiceTx(ctx context.Context, tx *sql.Tx, invoiceId int64, record *models.Transaction) (*models.Invoice, error) {
	invoice, err := getInvoiceTx(ctx, tx, invoiceId)
	if err != nil {
		return nil, err
	}

	version := invoice.Version
	changed, err := lifecycle.ApplyTransaction(invoice, record)
	if err != nil {
		zap.L().Warn("Transaction rejected by invoice lifecycle",
			zap.Int64("invoice_id", invoiceId),
			zap.String("invoice_status", string(invoice.Status)),
			zap.String("type", string(record.TransactionType)),
			zap.Error(err))
		return nil, err
	}
	if !changed {
		return invoice, nil
	}

	if err := s.updateInvoiceTx(ctx, tx, invoice, version); err != nil {
		return nil, err
	}

	zap.L().Info("Invoice settled by transaction",
		zap.Int64("invoice_id", invoiceId),
		zap.String("status", string(invoice.Status)),
		zap.String("transaction_hash", invoice.TransactionHash))
	return invoice, nil
}

func (s *Service) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransaction, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query transaction: %w", err)
	}
	return t, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	var clauses []string
	var args []any

	if filter.WalletAddress != "" {
		clauses = append(clauses, "(sender_wallet_address = ? OR recipient_wallet_address = ?)")
		args = append(args, filter.WalletAddress, filter.WalletAddress)
	}
	if filter.InvoiceId != nil {
		clauses = append(clauses, "invoice_id = ?")
		args = append(args, *filter.InvoiceId)
	}
	if filter.TransactionType != "" {
		clauses = append(clauses, "transaction_type = ?")
		args = append(args, string(filter.TransactionType))
	}

	query := queryListTransactionsBase
	if len(clauses) > 0 {
		query += "\n\t\tWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\n\t\tORDER BY timestamp DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		zap.L().Error("Failed to query transactions", zap.Error(err))
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}
	defer closeRows(rows)

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// UpdateTransactionStatus resolves a pending transaction. Settled rows are
// immutable; a pending payment that becomes successful settles its invoice.
func (s *Service) UpdateTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus) (*models.Transaction, *models.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := scanTransaction(tx.QueryRowContext(ctx, queryGetTransaction, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("unable to query transaction: %w", err)
	}

	if record.Status == status {
		return record, nil, nil
	}
	if record.Status != models.TransactionStatusPending {
		return nil, nil, fmt.Errorf("transaction %d is already %s: %w", id, record.Status, store.ErrInvalidTransition)
	}

	previous := record.Status
	record.Status = status

	var invoice *models.Invoice
	if record.InvoiceId != nil {
		invoice, err = s.settleInvoiceTx(ctx, tx, *record.InvoiceId, record)
		if err != nil {
			return nil, nil, err
		}
	}

	result, err := tx.ExecContext(ctx, queryUpdateTransactionStatus, string(status), id, string(previous))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil, fmt.Errorf("transaction %d status update failed - %w", id, store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Transaction status updated",
		zap.Int64("transaction_id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))

	if invoice != nil {
		invoice, err = s.GetInvoice(ctx, invoice.Id)
		if err != nil {
			return record, nil, err
		}
	}
	return record, invoice, nil
}
