package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxAirdropSol is the largest devnet airdrop the API will request.
var MaxAirdropSol = decimal.NewFromInt(2)

var (
	ErrAirdropDisabled  = errors.New("airdrop is disabled")
	ErrUnknownSignature = errors.New("signature not found on chain")
)

var lamportsPerSol = decimal.NewFromInt(int64(solanago.LAMPORTS_PER_SOL))

// Chain is the subset of Solana RPC the billing service depends on.
type Chain interface {
	Balance(ctx context.Context, address string) (*models.WalletBalance, error)
	Airdrop(ctx context.Context, address string, sol decimal.Decimal) (string, error)
	Confirm(ctx context.Context, signature string) (models.TransactionStatus, error)
}

type rpcClient interface {
	GetBalance(ctx context.Context, account solanago.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdrop(ctx context.Context, account solanago.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solanago.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error)
}

type Client struct {
	rpc            rpcClient
	commitment     rpc.CommitmentType
	airdropEnabled bool
}

var _ Chain = (*Client)(nil)

func NewClient(cfg models.SolanaConfig) (*Client, error) {
	if cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("solana rpc endpoint cannot be empty")
	}

	zap.L().Info("Using Solana RPC endpoint",
		zap.String("endpoint", cfg.RPCEndpoint),
		zap.Bool("airdrop_enabled", cfg.AirdropEnabled))

	return newClient(rpc.New(cfg.RPCEndpoint), cfg), nil
}

func newClient(r rpcClient, cfg models.SolanaConfig) *Client {
	commitment := rpc.CommitmentConfirmed
	switch strings.ToLower(cfg.Commitment) {
	case "processed":
		commitment = rpc.CommitmentProcessed
	case "finalized":
		commitment = rpc.CommitmentFinalized
	}
	return &Client{rpc: r, commitment: commitment, airdropEnabled: cfg.AirdropEnabled}
}

// ValidateAddress checks that address is a base58 encoded public key.
func ValidateAddress(address string) error {
	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return store.NewValidationError("address", "is not a valid Solana address")
	}
	return nil
}

func LamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSol)
}

func SolToLamports(sol decimal.Decimal) uint64 {
	return uint64(sol.Mul(lamportsPerSol).Truncate(0).IntPart())
}

func (c *Client) Balance(ctx context.Context, address string) (*models.WalletBalance, error) {
	pubKey, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nil, store.NewValidationError("address", "is not a valid Solana address")
	}

	result, err := c.rpc.GetBalance(ctx, pubKey, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("unable to get balance for %s: %w", address, err)
	}

	return &models.WalletBalance{
		Address:  address,
		Balance:  LamportsToSol(result.Value),
		Lamports: result.Value,
	}, nil
}

// Airdrop requests devnet SOL. It is refused unless enabled in configuration.
func (c *Client) Airdrop(ctx context.Context, address string, sol decimal.Decimal) (string, error) {
	if !c.airdropEnabled {
		return "", ErrAirdropDisabled
	}

	pubKey, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return "", store.NewValidationError("address", "is not a valid Solana address")
	}
	if !sol.GreaterThan(decimal.Zero) || sol.GreaterThan(MaxAirdropSol) {
		return "", store.NewValidationError("amount", fmt.Sprintf("must be between 0 and %s SOL", MaxAirdropSol))
	}

	signature, err := c.rpc.RequestAirdrop(ctx, pubKey, SolToLamports(sol), c.commitment)
	if err != nil {
		return "", fmt.Errorf("airdrop to %s failed: %w", address, err)
	}

	zap.L().Info("Airdrop requested",
		zap.String("address", address),
		zap.String("amount", sol.String()),
		zap.String("signature", signature.String()))
	return signature.String(), nil
}

// Confirm maps the on-chain signature status to a transaction status.
// Confirmed or finalized signatures succeed, an execution error fails, and
// anything else is still pending.
func (c *Client) Confirm(ctx context.Context, signature string) (models.TransactionStatus, error) {
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return "", store.NewValidationError("signature", "is not a valid transaction signature")
	}

	result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", fmt.Errorf("unable to get signature status: %w", err)
	}
	if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
		return models.TransactionStatusPending, ErrUnknownSignature
	}

	status := result.Value[0]
	if status.Err != nil {
		zap.L().Warn("Transaction failed on chain", zap.String("signature", signature), zap.Any("error", status.Err))
		return models.TransactionStatusFailed, nil
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return models.TransactionStatusSuccess, nil
	default:
		return models.TransactionStatusPending, nil
	}
}
