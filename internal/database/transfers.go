package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"
)

func scanTransfer(row rowScanner) (*models.BridgeTransfer, error) {
	var t models.BridgeTransfer
	var userId sql.NullInt64
	var status string
	err := row.Scan(&t.Id, &userId, &t.FromChain, &t.ToChain, &t.FromAddress, &t.ToAddress, &t.TokenAddress,
		&t.TokenSymbol, &t.Amount, &status, &t.TransactionHash, &t.Error, &t.Mode, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.UserId = int64Ptr(userId)
	t.Status = models.TransferStatus(status)
	return &t, nil
}

// SaveTransfer inserts a transfer or updates the outcome of an existing one.
func (s *Service) SaveTransfer(ctx context.Context, t models.BridgeTransfer) error {
	_, err := s.db.ExecContext(ctx, queryUpsertTransfer,
		t.Id, nullInt64(t.UserId), t.FromChain, t.ToChain, t.FromAddress, t.ToAddress, t.TokenAddress,
		t.TokenSymbol, t.Amount, string(t.Status), t.TransactionHash, t.Error, t.Mode,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("unable to save transfer %s: %w", t.Id, err)
	}
	return nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (*models.BridgeTransfer, error) {
	t, err := scanTransfer(s.db.QueryRowContext(ctx, queryGetTransfer, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transfer %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns every transfer, or only the user's when userId is set.
func (s *Service) ListTransfers(ctx context.Context, userId *int64) ([]models.BridgeTransfer, error) {
	var rows *sql.Rows
	var err error
	if userId != nil {
		rows, err = s.db.QueryContext(ctx, queryListTransfersByUser, *userId)
	} else {
		rows, err = s.db.QueryContext(ctx, queryListTransfers)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query transfers: %w", err)
	}
	defer closeRows(rows)

	transfers := []models.BridgeTransfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transfer row: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer rows: %w", err)
	}
	return transfers, nil
}
