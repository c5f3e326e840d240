package solana

import (
	"context"
	"errors"
	"testing"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "11111111111111111111111111111111"

type fakeRPC struct {
	balance  uint64
	lamports uint64
	statuses []*rpc.SignatureStatusesResult
	err      error
}

func (f *fakeRPC) GetBalance(_ context.Context, _ solanago.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeRPC) RequestAirdrop(_ context.Context, _ solanago.PublicKey, lamports uint64, _ rpc.CommitmentType) (solanago.Signature, error) {
	f.lamports = lamports
	return solanago.Signature{1, 2, 3}, f.err
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ bool, _ ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetSignatureStatusesResult{Value: f.statuses}, nil
}

func TestBalance(t *testing.T) {
	client := newClient(&fakeRPC{balance: 1_500_000_000}, models.SolanaConfig{})

	balance, err := client.Balance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), balance.Lamports)
	assert.True(t, balance.Balance.Equal(decimal.RequireFromString("1.5")))

	_, err = client.Balance(context.Background(), "not-base58!")
	var ve *store.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestAirdrop(t *testing.T) {
	fake := &fakeRPC{}

	disabled := newClient(fake, models.SolanaConfig{})
	_, err := disabled.Airdrop(context.Background(), testAddress, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrAirdropDisabled)

	enabled := newClient(fake, models.SolanaConfig{AirdropEnabled: true})
	_, err = enabled.Airdrop(context.Background(), testAddress, decimal.NewFromInt(3))
	var ve *store.ValidationError
	assert.True(t, errors.As(err, &ve), "airdrops above the cap are rejected")

	sig, err := enabled.Airdrop(context.Background(), testAddress, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, uint64(500_000_000), fake.lamports)
}

func TestConfirm(t *testing.T) {
	signature := solanago.Signature{9}.String()

	tests := []struct {
		name     string
		statuses []*rpc.SignatureStatusesResult
		want     models.TransactionStatus
		wantErr  error
	}{
		{"finalized", []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusFinalized}}, models.TransactionStatusSuccess, nil},
		{"confirmed", []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}}, models.TransactionStatusSuccess, nil},
		{"processed", []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusProcessed}}, models.TransactionStatusPending, nil},
		{"failed", []*rpc.SignatureStatusesResult{{Err: map[string]any{"InstructionError": []any{0, "Custom"}}}}, models.TransactionStatusFailed, nil},
		{"unknown", []*rpc.SignatureStatusesResult{nil}, models.TransactionStatusPending, ErrUnknownSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(&fakeRPC{statuses: tt.statuses}, models.SolanaConfig{})
			status, err := client.Confirm(context.Background(), signature)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(testAddress))
	assert.Error(t, ValidateAddress(""))
	assert.Error(t, ValidateAddress("0xdeadbeef"))
}
