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

package common

import (
	"context"
	"fmt"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id            int64
	Username      string
	WalletAddress string
	Role          models.Role
}

// InitializeUsers retrieves users based on an optional filter. A filter that
// looks like a wallet address is matched against wallets, anything else
// against usernames. An empty filter returns all users.
func InitializeUsers(ctx context.Context, dbService store.Store, filter string, logger *zap.Logger) ([]UserInfo, error) {
	var users []UserInfo

	if filter != "" {
		logger.Info("Looking up user", zap.String("filter", filter))
		user, err := lookupUser(ctx, dbService, filter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		users = append(users, toUserInfo(*user))
	} else {
		allUsers, err := dbService.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		for _, u := range allUsers {
			users = append(users, toUserInfo(u))
		}
	}

	logger.Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func lookupUser(ctx context.Context, dbService store.Store, filter string) (*models.User, error) {
	if len(filter) >= 32 {
		if user, err := dbService.GetUserByWallet(ctx, filter); err == nil {
			return user, nil
		}
	}
	return dbService.GetUserByUsername(ctx, filter)
}

func toUserInfo(u models.User) UserInfo {
	return UserInfo{
		Id:            u.Id,
		Username:      u.Username,
		WalletAddress: u.WalletAddress,
		Role:          u.Role,
	}
}
