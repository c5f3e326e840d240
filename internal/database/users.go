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

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var wallet sql.NullString
	var role string
	if err := row.Scan(&user.Id, &user.Username, &wallet, &role, &user.Balance, &user.Email, &user.CompanyName, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.WalletAddress = wallet.String
	user.Role = models.Role(role)
	return &user, nil
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	zap.L().Debug("Querying users")

	rows, err := s.db.QueryContext(ctx, queryGetUsers)
	if err != nil {
		zap.L().Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			zap.L().Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}
		users = append(users, *user)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during user row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Debug("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserById, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		zap.L().Error("Failed to query user by ID", zap.Int64("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by ID: %w", err)
	}
	return user, nil
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByUsername, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, store.ErrNotFound)
		}
		zap.L().Error("Failed to query user by username", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by username: %w", err)
	}
	return user, nil
}

func (s *Service) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByWallet, walletAddress))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with wallet %s: %w", walletAddress, store.ErrNotFound)
		}
		zap.L().Error("Failed to query user by wallet", zap.String("wallet_address", walletAddress), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by wallet: %w", err)
	}
	return user, nil
}

func (s *Service) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	zap.L().Info("Creating user",
		zap.String("username", params.Username),
		zap.String("wallet_address", params.WalletAddress),
		zap.String("role", string(params.Role)))

	result, err := s.db.ExecContext(ctx, queryInsertUser,
		params.Username, nullString(params.WalletAddress), string(params.Role), params.Email, params.CompanyName, s.now())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %s or wallet %s: %w", params.Username, params.WalletAddress, store.ErrDuplicateUser)
		}
		zap.L().Error("Failed to insert user", zap.String("username", params.Username), zap.Error(err))
		return nil, fmt.Errorf("unable to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("unable to read user id: %w", err)
	}

	zap.L().Info("User created successfully", zap.Int64("id", id), zap.String("username", params.Username))
	return s.GetUserById(ctx, id)
}

func (s *Service) UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error) {
	if err := s.execSingle(ctx, queryUpdateUserRole, string(role), id); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	zap.L().Info("User role updated", zap.Int64("user_id", id), zap.String("role", string(role)))
	return s.GetUserById(ctx, id)
}

func (s *Service) UpdateUserWallet(ctx context.Context, id int64, walletAddress string) (*models.User, error) {
	if err := s.execSingle(ctx, queryUpdateUserWallet, nullString(walletAddress), id); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("wallet %s: %w", walletAddress, store.ErrDuplicateUser)
		}
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	zap.L().Info("User wallet updated", zap.Int64("user_id", id), zap.String("wallet_address", walletAddress))
	return s.GetUserById(ctx, id)
}

// execSingle runs a statement that must touch exactly one row.
func (s *Service) execSingle(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
