package api

import (
	"context"
	"errors"
	"fmt"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/solana"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

const networkSolana = "solana"

func (s *BillingService) CurrentUser(ctx context.Context) (*models.User, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	// Re-read so role and wallet changes made earlier in the session are visible
	return s.db.GetUserById(ctx, user.Id)
}

func (s *BillingService) SetRole(ctx context.Context, req models.SetRoleRequest) (*models.User, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	role := models.Role(req.Role)
	if role != models.RoleClient && role != models.RoleFreelancer {
		return nil, store.NewValidationError("role", "must be client or freelancer")
	}
	return s.db.UpdateUserRole(ctx, user.Id, role)
}

// ConnectWallet signs a wallet in, creating its user on first contact and
// registering the address as one of the user's wallets.
func (s *BillingService) ConnectWallet(ctx context.Context, req models.ConnectWalletRequest) (*models.ConnectWalletResult, error) {
	if err := solana.ValidateAddress(req.WalletAddress); err != nil {
		return nil, store.NewValidationError("walletAddress", "is not a valid Solana address")
	}

	result := &models.ConnectWalletResult{}

	user, err := s.db.GetUserByWallet(ctx, req.WalletAddress)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		username := req.Username
		if username == "" {
			username = defaultUsername(req.WalletAddress)
		}
		user, err = s.db.CreateUser(ctx, store.CreateUserParams{
			Username:      username,
			WalletAddress: req.WalletAddress,
		})
		if err != nil {
			return nil, err
		}
		result.Created = true
	default:
		return nil, err
	}
	result.User = user

	wallet, err := s.db.CreateWallet(ctx, models.Wallet{
		UserId:  user.Id,
		Address: req.WalletAddress,
		Network: networkSolana,
		Label:   "Connected wallet",
	})
	if err != nil {
		return nil, err
	}
	result.Wallet = wallet

	if s.chain != nil {
		balance, err := s.chain.Balance(ctx, req.WalletAddress)
		if err != nil {
			zap.L().Warn("Unable to fetch balance for connected wallet",
				zap.String("wallet_address", req.WalletAddress),
				zap.Error(err))
		} else {
			result.Balance = balance
		}
	}

	zap.L().Info("Wallet connected",
		zap.Int64("user_id", user.Id),
		zap.String("wallet_address", req.WalletAddress),
		zap.Bool("created", result.Created))
	return result, nil
}

func defaultUsername(walletAddress string) string {
	short := walletAddress
	if len(short) > 8 {
		short = short[:8]
	}
	return "user_" + short
}

func (s *BillingService) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.ListWallets(ctx, user.Id)
}

func (s *BillingService) CreateWallet(ctx context.Context, req models.CreateWalletRequest) (*models.Wallet, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	network := req.Network
	if network == "" {
		network = networkSolana
	}
	if network == networkSolana {
		if err := solana.ValidateAddress(req.Address); err != nil {
			return nil, store.NewValidationError("address", "is not a valid Solana address")
		}
	}

	wallet, err := s.db.CreateWallet(ctx, models.Wallet{
		UserId:  user.Id,
		Address: req.Address,
		Network: network,
		Label:   req.Label,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to register wallet: %w", err)
	}

	// The first wallet a user registers becomes their sign-in wallet
	if user.WalletAddress == "" {
		if _, err := s.db.UpdateUserWallet(ctx, user.Id, wallet.Address); err != nil {
			zap.L().Warn("Unable to set primary wallet", zap.Int64("user_id", user.Id), zap.Error(err))
		}
	}
	return wallet, nil
}
