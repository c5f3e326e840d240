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

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(&c.Id, &c.UserId, &c.Name, &c.Email, &c.Company, &c.Address, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) CreateClient(ctx context.Context, client models.Client) (*models.Client, error) {
	result, err := s.db.ExecContext(ctx, queryInsertClient,
		client.UserId, client.Name, client.Email, client.Company, client.Address, s.now())
	if err != nil {
		zap.L().Error("Failed to insert client", zap.Int64("user_id", client.UserId), zap.Error(err))
		return nil, fmt.Errorf("unable to insert client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("unable to read client id: %w", err)
	}

	zap.L().Info("Client created", zap.Int64("id", id), zap.Int64("user_id", client.UserId))
	return s.GetClient(ctx, id)
}

func (s *Service) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	client, err := scanClient(s.db.QueryRowContext(ctx, queryGetClient, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query client: %w", err)
	}
	return client, nil
}

func (s *Service) ListClients(ctx context.Context, userId int64) ([]models.Client, error) {
	rows, err := s.db.QueryContext(ctx, queryListClients, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query clients: %w", err)
	}
	defer closeRows(rows)

	clients := []models.Client{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan client row: %w", err)
		}
		clients = append(clients, *client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating client rows: %w", err)
	}
	return clients, nil
}

func (s *Service) UpdateClient(ctx context.Context, client models.Client) (*models.Client, error) {
	err := s.execSingle(ctx, queryUpdateClient, client.Name, client.Email, client.Company, client.Address, client.Id)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", client.Id, err)
	}
	return s.GetClient(ctx, client.Id)
}

func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	if err := s.execSingle(ctx, queryDeleteClient, id); err != nil {
		return fmt.Errorf("client %d: %w", id, err)
	}
	zap.L().Info("Client deleted", zap.Int64("id", id))
	return nil
}
