package api

import (
	"context"
	"fmt"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"
)

func (s *BillingService) CreateClient(ctx context.Context, req models.ClientRequest) (*models.Client, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.CreateClient(ctx, models.Client{
		UserId:  user.Id,
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Address: req.Address,
	})
}

func (s *BillingService) ListClients(ctx context.Context) ([]models.Client, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.ListClients(ctx, user.Id)
}

// GetClient hides other users' clients behind ErrNotFound.
func (s *BillingService) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	client, err := s.db.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if client.UserId != user.Id {
		return nil, fmt.Errorf("client %d: %w", id, store.ErrNotFound)
	}
	return client, nil
}

func (s *BillingService) UpdateClient(ctx context.Context, id int64, req models.UpdateClientRequest) (*models.Client, error) {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Email != nil {
		client.Email = *req.Email
	}
	if req.Company != nil {
		client.Company = *req.Company
	}
	if req.Address != nil {
		client.Address = *req.Address
	}
	return s.db.UpdateClient(ctx, *client)
}

func (s *BillingService) DeleteClient(ctx context.Context, id int64) error {
	if _, err := s.GetClient(ctx, id); err != nil {
		return err
	}
	return s.db.DeleteClient(ctx, id)
}

func (s *BillingService) CreateContact(ctx context.Context, req models.CreateContactRequest) (*models.Contact, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.CreateContact(ctx, models.Contact{
		UserId:        user.Id,
		Name:          req.Name,
		WalletAddress: req.WalletAddress,
		Email:         req.Email,
		Company:       req.Company,
	})
}

func (s *BillingService) ListContacts(ctx context.Context) ([]models.Contact, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.ListContacts(ctx, user.Id)
}

func (s *BillingService) DeleteContact(ctx context.Context, id int64) error {
	user, err := requireUser(ctx)
	if err != nil {
		return err
	}
	return s.db.DeleteContact(ctx, user.Id, id)
}
