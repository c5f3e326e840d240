package database

import (
	"context"
	"database/sql"
	"fmt"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var invoiceId sql.NullInt64
	var status string
	if err := row.Scan(&p.Id, &p.UserId, &invoiceId, &p.Amount, &p.CryptoAmount, &p.CryptoType, &status, &p.TransactionId, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.InvoiceId = int64Ptr(invoiceId)
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

// CreatePayment stores a legacy payment row. Invoice settlement for completed
// payments is driven by the caller through CreateTransaction.
func (s *Service) CreatePayment(ctx context.Context, params store.CreatePaymentParams) (*models.Payment, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx, queryInsertPayment,
		params.UserId, nullInt64(params.InvoiceId), params.Amount, params.CryptoAmount, params.CryptoType,
		string(params.Status), params.TransactionId, now)
	if err != nil {
		zap.L().Error("Failed to insert payment", zap.Int64("user_id", params.UserId), zap.Error(err))
		return nil, fmt.Errorf("unable to insert payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("unable to read payment id: %w", err)
	}

	zap.L().Info("Payment recorded",
		zap.Int64("id", id),
		zap.Int64("user_id", params.UserId),
		zap.String("status", string(params.Status)))

	return &models.Payment{
		Id:            id,
		UserId:        params.UserId,
		InvoiceId:     params.InvoiceId,
		Amount:        params.Amount,
		CryptoAmount:  params.CryptoAmount,
		CryptoType:    params.CryptoType,
		Status:        params.Status,
		TransactionId: params.TransactionId,
		CreatedAt:     now,
	}, nil
}

func (s *Service) ListPayments(ctx context.Context, userId int64) ([]models.Payment, error) {
	return s.queryPayments(ctx, queryListPayments, userId)
}

func (s *Service) ListPaymentsByInvoice(ctx context.Context, invoiceId int64) ([]models.Payment, error) {
	return s.queryPayments(ctx, queryListPaymentsByInvoice, invoiceId)
}

func (s *Service) queryPayments(ctx context.Context, query string, arg int64) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("unable to query payments: %w", err)
	}
	defer closeRows(rows)

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan payment row: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}
	return payments, nil
}
