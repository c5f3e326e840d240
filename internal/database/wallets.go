package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.Id, &w.UserId, &w.Address, &w.Network, &w.Label, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWallet registers an address for a user. Registering an address twice
// for the same user returns the existing row.
func (s *Service) CreateWallet(ctx context.Context, wallet models.Wallet) (*models.Wallet, error) {
	if wallet.Network == "" {
		wallet.Network = "solana"
	}

	_, err := s.db.ExecContext(ctx, queryInsertWallet, wallet.UserId, wallet.Address, wallet.Network, wallet.Label, s.now())
	if err != nil {
		if !isUniqueViolation(err) {
			zap.L().Error("Failed to insert wallet", zap.String("address", wallet.Address), zap.Error(err))
			return nil, fmt.Errorf("unable to insert wallet: %w", err)
		}

		existing, getErr := s.GetWalletByAddress(ctx, wallet.Address)
		if getErr != nil {
			return nil, getErr
		}
		if existing.UserId != wallet.UserId {
			return nil, fmt.Errorf("wallet %s belongs to another user: %w", wallet.Address, store.ErrDuplicateUser)
		}
		return existing, nil
	}

	zap.L().Info("Wallet registered", zap.Int64("user_id", wallet.UserId), zap.String("address", wallet.Address))
	return s.GetWalletByAddress(ctx, wallet.Address)
}

func (s *Service) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWalletByAddress, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("wallet %s: %w", address, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query wallet: %w", err)
	}
	return wallet, nil
}

func (s *Service) ListWallets(ctx context.Context, userId int64) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryListWallets, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}
	defer closeRows(rows)

	wallets := []models.Wallet{}
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		wallets = append(wallets, *wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}
