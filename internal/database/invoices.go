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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cryptopay-go/internal/lifecycle"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxInvoiceNumberAttempts = 5

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	var clientId sql.NullInt64
	var status, items string
	var paymentDate, refundDate, escrowDate sql.NullTime

	err := row.Scan(&inv.Id, &inv.InvoiceNumber, &inv.CreatorId, &clientId, &inv.CreatorWalletAddress,
		&inv.RecipientName, &inv.RecipientWalletAddress, &inv.Amount, &inv.FiatAmount, &inv.CryptoAmount,
		&inv.CryptoType, &inv.Description, &status, &inv.DueDate, &inv.IssueDate, &paymentDate, &refundDate,
		&escrowDate, &inv.TransactionHash, &inv.EscrowAccountAddress, &items, &inv.Notes, &inv.Template,
		&inv.ConvertOnPayment, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inv.ClientId = int64Ptr(clientId)
	inv.Status = models.InvoiceStatus(status)
	inv.PaymentDate = timePtr(paymentDate)
	inv.RefundDate = timePtr(refundDate)
	inv.EscrowDate = timePtr(escrowDate)

	inv.Items = []models.InvoiceItem{}
	if items != "" {
		if err := json.Unmarshal([]byte(items), &inv.Items); err != nil {
			return nil, fmt.Errorf("invoice %d has malformed items: %w", inv.Id, err)
		}
	}
	return &inv, nil
}

func marshalItems(items []models.InvoiceItem) (string, error) {
	if items == nil {
		items = []models.InvoiceItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("unable to encode invoice items: %w", err)
	}
	return string(data), nil
}

// CreateInvoice inserts an invoice. When no number is supplied the row is
// inserted under a temporary number and renamed to INV-<id> in the same
// transaction, so generated numbers follow the id sequence.
func (s *Service) CreateInvoice(ctx context.Context, p store.CreateInvoiceParams) (*models.Invoice, error) {
	items, err := marshalItems(p.Items)
	if err != nil {
		return nil, err
	}

	explicit := lifecycle.NormalizeInvoiceNumber(p.InvoiceNumber)
	number := explicit
	if number == "" {
		number = "pending-" + uuid.New().String()
	}

	now := s.now()
	issueDate := p.IssueDate
	if issueDate.IsZero() {
		issueDate = now
	}

	zap.L().Info("Creating invoice",
		zap.Int64("creator_id", p.CreatorId),
		zap.String("invoice_number", explicit),
		zap.String("amount", p.Amount.String()),
		zap.String("status", string(p.Status)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryInsertInvoice,
		number, p.CreatorId, nullInt64(p.ClientId), p.CreatorWalletAddress, p.RecipientName,
		p.RecipientWalletAddress, p.Amount, p.FiatAmount, p.CryptoAmount, p.CryptoType, p.Description,
		string(p.Status), p.DueDate.UTC(), issueDate.UTC(), items, p.Notes, p.Template, p.ConvertOnPayment,
		now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", explicit, store.ErrDuplicateInvoiceNumber)
		}
		zap.L().Error("Failed to insert invoice", zap.Int64("creator_id", p.CreatorId), zap.Error(err))
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice id: %w", err)
	}

	if explicit == "" {
		if err := assignInvoiceNumber(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Invoice created",
		zap.Int64("id", invoice.Id),
		zap.String("invoice_number", invoice.InvoiceNumber))
	return invoice, nil
}

func assignInvoiceNumber(ctx context.Context, tx *sql.Tx, id int64) error {
	for attempt := 0; attempt < maxInvoiceNumberAttempts; attempt++ {
		number := lifecycle.FormatInvoiceNumber(id)
		if attempt > 0 {
			number = lifecycle.CollisionInvoiceNumber(id, attempt)
		}

		_, err := tx.ExecContext(ctx, querySetInvoiceNumber, number, id)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("failed to assign invoice number: %w", err)
		}

		// An explicitly numbered invoice already holds this value
		zap.L().Warn("Generated invoice number taken", zap.Int64("id", id), zap.String("invoice_number", number))
	}
	return fmt.Errorf("invoice %d: %w", id, store.ErrDuplicateInvoiceNumber)
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx, queryGetInvoice, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d: %w", id, store.ErrNotFound)
		}
		zap.L().Error("Failed to query invoice", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("unable to query invoice: %w", err)
	}
	return invoice, nil
}

func (s *Service) GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*models.Invoice, error) {
	number := lifecycle.NormalizeInvoiceNumber(invoiceNumber)
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx, queryGetInvoiceByNumber, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", number, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query invoice by number: %w", err)
	}
	return invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]models.Invoice, error) {
	var clauses []string
	var args []any

	if filter.CreatorId != nil {
		clauses = append(clauses, "creator_id = ?")
		args = append(args, *filter.CreatorId)
	}
	if filter.ClientId != nil {
		clauses = append(clauses, "client_id = ?")
		args = append(args, *filter.ClientId)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := queryListInvoicesBase
	if len(clauses) > 0 {
		query += "\n\t\tWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\n\t\tORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		zap.L().Error("Failed to query invoices", zap.Error(err))
		return nil, fmt.Errorf("unable to query invoices: %w", err)
	}
	defer closeRows(rows)

	invoices := []models.Invoice{}
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan invoice row: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}
	return invoices, nil
}

// UpdateInvoice reads the invoice, applies mutate and writes it back guarded by
// the row version.
func (s *Service) UpdateInvoice(ctx context.Context, id int64, mutate store.InvoiceMutation) (*models.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getInvoiceTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	if err := mutate(&updated); err != nil {
		return nil, err
	}

	if err := s.updateInvoiceTx(ctx, tx, &updated, current.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if updated.Status != current.Status {
		zap.L().Info("Invoice status changed",
			zap.Int64("id", id),
			zap.String("from", string(current.Status)),
			zap.String("to", string(updated.Status)))
	}
	return s.GetInvoice(ctx, id)
}

func getInvoiceTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Invoice, error) {
	invoice, err := scanInvoice(tx.QueryRowContext(ctx, queryGetInvoice, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query invoice: %w", err)
	}
	return invoice, nil
}

func (s *Service) updateInvoiceTx(ctx context.Context, tx *sql.Tx, inv *models.Invoice, version int64) error {
	items, err := marshalItems(inv.Items)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, queryUpdateInvoice,
		nullInt64(inv.ClientId), inv.RecipientName, inv.RecipientWalletAddress, inv.Amount, inv.FiatAmount,
		inv.CryptoAmount, inv.CryptoType, inv.Description, string(inv.Status), inv.DueDate.UTC(),
		nullTime(inv.PaymentDate), nullTime(inv.RefundDate), nullTime(inv.EscrowDate), inv.TransactionHash,
		inv.EscrowAccountAddress, items, inv.Notes, inv.Template, inv.ConvertOnPayment, s.now(),
		inv.Id, version)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("invoice %d update failed - %w", inv.Id, store.ErrConcurrentModification)
	}
	return nil
}
