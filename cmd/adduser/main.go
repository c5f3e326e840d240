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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"regexp"

	"cryptopay-go/internal/common"
	"cryptopay-go/internal/config"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/solana"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateRole(role string) error {
	switch models.Role(role) {
	case "", models.RoleClient, models.RoleFreelancer:
		return nil
	}
	return fmt.Errorf("invalid role %q (expected client or freelancer)", role)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	usernameFlag := flag.String("username", "", "Username (required)")
	walletFlag := flag.String("wallet", "", "Solana wallet address (optional)")
	roleFlag := flag.String("role", "", "Role: client or freelancer (optional)")
	emailFlag := flag.String("email", "", "Email address (optional)")
	companyFlag := flag.String("company", "", "Company name (optional)")
	flag.Parse()

	if err := validateUsername(*usernameFlag); err != nil {
		zap.L().Fatal("Invalid username", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	if err := validateRole(*roleFlag); err != nil {
		zap.L().Fatal("Invalid role", zap.Error(err))
	}
	if *walletFlag != "" {
		if err := solana.ValidateAddress(*walletFlag); err != nil {
			zap.L().Fatal("Invalid wallet address", zap.Error(err))
		}
	}

	zap.L().Info("Starting user creation process",
		zap.String("username", *usernameFlag),
		zap.String("wallet_address", *walletFlag))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	user, err := dbService.CreateUser(ctx, store.CreateUserParams{
		Username:      *usernameFlag,
		WalletAddress: *walletFlag,
		Role:          models.Role(*roleFlag),
		Email:         *emailFlag,
		CompanyName:   *companyFlag,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			zap.L().Fatal("User already exists with this username or wallet",
				zap.String("username", *usernameFlag),
				zap.String("wallet_address", *walletFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	var wallet *models.Wallet
	if user.WalletAddress != "" {
		wallet, err = dbService.CreateWallet(ctx, models.Wallet{
			UserId:  user.Id,
			Address: user.WalletAddress,
			Network: "solana",
			Label:   "Primary wallet",
		})
		if err != nil {
			zap.L().Warn("User created but wallet registration failed", zap.Int64("user_id", user.Id), zap.Error(err))
		}
	}

	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:       %d\n", user.Id)
	fmt.Printf("Username: %s\n", user.Username)
	fmt.Printf("Role:     %s\n", user.Role)
	fmt.Printf("Email:    %s\n", user.Email)
	if wallet != nil {
		fmt.Printf("Wallet:   %s (%s)\n", wallet.Address, wallet.Network)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("User created successfully", zap.Int64("id", user.Id))
}
