package database

import (
	"context"
	"fmt"

	"cryptopay-go/internal/models"

	"go.uber.org/zap"
)

func (s *Service) CreateContact(ctx context.Context, contact models.Contact) (*models.Contact, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx, queryInsertContact,
		contact.UserId, contact.Name, contact.WalletAddress, contact.Email, contact.Company, now)
	if err != nil {
		zap.L().Error("Failed to insert contact", zap.Int64("user_id", contact.UserId), zap.Error(err))
		return nil, fmt.Errorf("unable to insert contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("unable to read contact id: %w", err)
	}

	contact.Id = id
	contact.CreatedAt = now
	return &contact, nil
}

func (s *Service) ListContacts(ctx context.Context, userId int64) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, queryListContacts, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query contacts: %w", err)
	}
	defer closeRows(rows)

	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.Id, &c.UserId, &c.Name, &c.WalletAddress, &c.Email, &c.Company, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contact rows: %w", err)
	}
	return contacts, nil
}

// DeleteContact removes a contact owned by the given user.
func (s *Service) DeleteContact(ctx context.Context, userId, id int64) error {
	if err := s.execSingle(ctx, queryDeleteContact, id, userId); err != nil {
		return fmt.Errorf("contact %d: %w", id, err)
	}
	return nil
}
