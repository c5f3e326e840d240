package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptopay-go/internal/bridge"
	"cryptopay-go/internal/database"
	"cryptopay-go/internal/kv"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/solana"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	freelancerWallet = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	clientWallet     = "So11111111111111111111111111111111111111112"
)

type fakeLedger struct {
	mu      sync.Mutex
	settled []models.Transaction
}

func (l *fakeLedger) RecordSettlement(_ context.Context, tx models.Transaction, _ *models.Invoice) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settled = append(l.settled, tx)
	return nil
}

func (l *fakeLedger) SettledBalance(context.Context, int64, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (l *fakeLedger) Close() {}

type fakeChain struct {
	status models.TransactionStatus
	err    error
}

func (c *fakeChain) Balance(_ context.Context, address string) (*models.WalletBalance, error) {
	return &models.WalletBalance{Address: address, Balance: decimal.NewFromInt(3), Lamports: 3_000_000_000}, nil
}

func (c *fakeChain) Airdrop(context.Context, string, decimal.Decimal) (string, error) {
	return "airdrop-sig", nil
}

func (c *fakeChain) Confirm(context.Context, string) (models.TransactionStatus, error) {
	return c.status, c.err
}

type fakeFeed struct {
	quotes []models.PriceQuote
	err    error
}

func (f *fakeFeed) FetchQuotes(context.Context) ([]models.PriceQuote, error) {
	return f.quotes, f.err
}

type testEnv struct {
	svc    *BillingService
	db     *database.Service
	mirror *kv.Mirror
	ledger *fakeLedger
	chain  *fakeChain
	feed   *fakeFeed
	now    time.Time
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
		SeedPrices:   true,
	})
	require.NoError(t, err)

	backend, err := kv.OpenSQLite(ctx, ":memory:", "test")
	require.NoError(t, err)
	mirror := kv.NewMirror(backend)

	env := &testEnv{
		db:     db,
		mirror: mirror,
		ledger: &fakeLedger{},
		chain:  &fakeChain{status: models.TransactionStatusSuccess},
		feed:   &fakeFeed{},
		now:    time.Now().UTC(),
	}

	sim := bridge.NewSimulator(db, models.BridgeConfig{SettleDelay: time.Hour}, bridge.WithMirror(mirror))
	env.svc = NewBillingService(Config{
		Store:  db,
		Mirror: mirror,
		Ledger: env.ledger,
		Chain:  env.chain,
		Prices: env.feed,
		Bridge: sim,
		Now:    func() time.Time { return env.now },
	})

	t.Cleanup(func() {
		sim.Close()
		_ = mirror.Close()
		db.Close()
	})
	return env
}

func (e *testEnv) login(t *testing.T, username, wallet string, role models.Role) context.Context {
	t.Helper()
	user, err := e.db.CreateUser(context.Background(), store.CreateUserParams{
		Username:      username,
		WalletAddress: wallet,
		Role:          role,
	})
	require.NoError(t, err)
	return models.WithSession(context.Background(), &models.Session{User: user, WalletAddress: wallet})
}

func (e *testEnv) newInvoice(t *testing.T, ctx context.Context, amount string, status string) *models.Invoice {
	t.Helper()
	invoice, err := e.svc.CreateInvoice(ctx, models.CreateInvoiceRequest{
		RecipientName:          "Bob Industries",
		RecipientWalletAddress: clientWallet,
		Amount:                 decimal.RequireFromString(amount),
		DueDate:                e.now.Add(7 * 24 * time.Hour),
		Status:                 status,
		Items: []models.InvoiceItem{
			{Description: "Logo design", Quantity: decimal.NewFromInt(1), Rate: decimal.RequireFromString(amount)},
		},
	})
	require.NoError(t, err)
	return invoice
}

func TestInvoiceLifecycle_PayThenRefund(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)

	invoice := env.newInvoice(t, ctx, "1.5", "")
	assert.Equal(t, models.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, "SOL", invoice.CryptoType)
	assert.Equal(t, "INV-000001", invoice.InvoiceNumber)
	require.True(t, invoice.FiatAmount.Valid)
	assert.True(t, invoice.FiatAmount.Decimal.Equal(decimal.RequireFromString("36.89")))
	assert.True(t, invoice.Items[0].Amount.Equal(decimal.RequireFromString("1.5")))

	paid, err := env.svc.CreateTransaction(ctx, models.CreateTransactionRequest{
		InvoiceId:              &invoice.Id,
		SenderWalletAddress:    clientWallet,
		RecipientWalletAddress: freelancerWallet,
		Amount:                 decimal.RequireFromString("1.5"),
		TransactionType:        "payment",
		TransactionHash:        "hash-pay",
	})
	require.NoError(t, err)
	require.NotNil(t, paid.Invoice)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Invoice.Status)
	assert.Equal(t, "hash-pay", paid.Invoice.TransactionHash)
	assert.NotNil(t, paid.Invoice.PaymentDate)

	refunded, err := env.svc.RefundInvoice(ctx, invoice.Id)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusRefunded, refunded.Invoice.Status)
	assert.Equal(t, models.TransactionTypeRefund, refunded.Transaction.TransactionType)
	assert.Regexp(t, `^refund_\d+_1$`, refunded.Transaction.TransactionHash)

	// The mirror follows every status change
	mirrored, err := env.svc.GetInvoiceByNumber(ctx, "inv-000001")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusRefunded, mirrored.Status)

	ids, err := env.mirror.ListInvoiceIds(context.Background(), store.InvoiceFilter{Status: models.InvoiceStatusPaid})
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.Len(t, env.ledger.settled, 2)
}

func TestCreateTransaction_SecondPaymentRejected(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	invoice := env.newInvoice(t, ctx, "2", "pending")

	req := models.CreateTransactionRequest{
		InvoiceId:              &invoice.Id,
		SenderWalletAddress:    clientWallet,
		RecipientWalletAddress: freelancerWallet,
		Amount:                 decimal.NewFromInt(2),
		TransactionType:        "payment",
	}
	_, err := env.svc.CreateTransaction(ctx, req)
	require.NoError(t, err)

	_, err = env.svc.CreateTransaction(ctx, req)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	txs, err := env.svc.ListTransactions(ctx, store.TransactionFilter{InvoiceId: &invoice.Id})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestCreateInvoice_Validation(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)

	_, err := env.svc.CreateInvoice(ctx, models.CreateInvoiceRequest{
		RecipientName: "Bob",
		Amount:        decimal.NewFromInt(1),
		DueDate:       env.now.Add(-time.Hour),
		CryptoType:    "DOGE",
	})
	var ve *store.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "dueDate")
	assert.Contains(t, ve.Fields, "cryptoType")

	_, err = env.svc.CreateInvoice(context.Background(), models.CreateInvoiceRequest{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEscrowReleaseFlow(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	invoice := env.newInvoice(t, ctx, "3", "pending")

	_, err := env.svc.ReleaseInvoice(ctx, invoice.Id)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	escrowed, err := env.svc.EscrowInvoice(ctx, invoice.Id)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusEscrowed, escrowed.Status)
	assert.Equal(t, "escrow_sim_000001", escrowed.EscrowAccountAddress)
	assert.NotNil(t, escrowed.EscrowDate)

	released, err := env.svc.ReleaseInvoice(ctx, invoice.Id)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, released.Invoice.Status)
	assert.Equal(t, "escrow_sim_000001", released.Transaction.SenderWalletAddress)
	assert.Regexp(t, `^release_\d+_1$`, released.Invoice.TransactionHash)
}

func TestUpdateInvoice(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	invoice := env.newInvoice(t, ctx, "1", "")

	amount := decimal.NewFromInt(2)
	notes := "Net 30"
	updated, err := env.svc.UpdateInvoice(ctx, invoice.Id, models.UpdateInvoiceRequest{Amount: &amount, Notes: &notes})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(amount))
	assert.True(t, updated.FiatAmount.Decimal.Equal(decimal.RequireFromString("49.18")))
	assert.Equal(t, invoice.Version+1, updated.Version)

	paid := "paid"
	hash := "manual-hash"
	updated, err = env.svc.UpdateInvoice(ctx, invoice.Id, models.UpdateInvoiceRequest{Status: &paid, TransactionHash: &hash})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, updated.Status)

	payments, err := env.svc.ListPayments(ctx, &invoice.Id)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusCompleted, payments[0].Status)
	assert.Equal(t, "manual-hash", payments[0].TransactionId)

	_, err = env.svc.UpdateInvoice(ctx, invoice.Id, models.UpdateInvoiceRequest{Notes: &notes})
	assert.ErrorIs(t, err, ErrInvoiceLocked)

	draft := "draft"
	_, err = env.svc.UpdateInvoice(ctx, invoice.Id, models.UpdateInvoiceRequest{Status: &draft})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestUpdateInvoice_OtherUserForbidden(t *testing.T) {
	env := setupTestService(t)
	alice := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	mallory := env.login(t, "mallory", "", models.RoleClient)
	invoice := env.newInvoice(t, alice, "1", "")

	notes := "mine now"
	_, err := env.svc.UpdateInvoice(mallory, invoice.Id, models.UpdateInvoiceRequest{Notes: &notes})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransactions_RequireInvoiceParty(t *testing.T) {
	env := setupTestService(t)
	alice := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	mallory := env.login(t, "mallory", "11111111111111111111111111111111", models.RoleClient)
	invoice := env.newInvoice(t, alice, "1", "pending")

	refund := models.CreateTransactionRequest{
		InvoiceId:              &invoice.Id,
		SenderWalletAddress:    freelancerWallet,
		RecipientWalletAddress: clientWallet,
		Amount:                 decimal.NewFromInt(1),
		TransactionType:        "refund",
	}
	_, err := env.svc.CreateTransaction(context.Background(), refund)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.svc.CreateTransaction(mallory, refund)
	assert.ErrorIs(t, err, ErrForbidden)

	unlinked := refund
	unlinked.InvoiceId = nil
	_, err = env.svc.CreateTransaction(mallory, unlinked)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.GetInvoice(mallory, invoice.Id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.ListInvoices(mallory, store.InvoiceFilter{CreatorId: &invoice.CreatorId})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.MirrorInvoice(mallory, invoice.Id)
	assert.ErrorIs(t, err, ErrForbidden)

	own, err := env.svc.ListInvoices(mallory, store.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, own)

	payment := refund
	payment.TransactionType = "payment"
	payment.SenderWalletAddress, payment.RecipientWalletAddress = clientWallet, freelancerWallet
	payment.Status = "pending"
	result, err := env.svc.CreateTransaction(alice, payment)
	require.NoError(t, err)

	_, err = env.svc.UpdateTransactionStatus(mallory, result.Transaction.Id, models.UpdateTransactionStatusRequest{Status: "success"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.UpdateTransactionStatus(context.Background(), result.Transaction.Id, models.UpdateTransactionStatusRequest{Status: "success"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := env.svc.GetInvoice(alice, invoice.Id)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPending, got.Status)
}

func TestSweepOverdue(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	pending := env.newInvoice(t, ctx, "1", "pending")
	draft := env.newInvoice(t, ctx, "1", "draft")

	result, err := env.svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.MarkedOverdue)

	env.now = env.now.Add(8 * 24 * time.Hour)
	result, err = env.svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, []int64{pending.Id}, result.MarkedOverdue)

	got, err := env.svc.GetInvoice(ctx, draft.Id)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusDraft, got.Status)
}

func TestSolanaPayment_PendingSignatureSettlesLater(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	invoice := env.newInvoice(t, ctx, "1.5", "pending")

	env.chain.status = models.TransactionStatusPending
	env.chain.err = solana.ErrUnknownSignature

	result, err := env.svc.SolanaPayment(ctx, models.SolanaPaymentRequest{
		InvoiceId:           invoice.Id,
		SenderWalletAddress: clientWallet,
		Amount:              decimal.RequireFromString("1.5"),
		Signature:           "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, result.Transaction.Status)
	assert.Equal(t, freelancerWallet, result.Transaction.RecipientWalletAddress)
	require.NotNil(t, result.Invoice)
	assert.Equal(t, models.InvoiceStatusPending, result.Invoice.Status)

	settled, err := env.svc.UpdateTransactionStatus(ctx, result.Transaction.Id, models.UpdateTransactionStatusRequest{Status: "success"})
	require.NoError(t, err)
	require.NotNil(t, settled.Invoice)
	assert.Equal(t, models.InvoiceStatusPaid, settled.Invoice.Status)
}

func TestSolanaPayment_Validation(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	invoice := env.newInvoice(t, ctx, "1.5", "pending")

	_, err := env.svc.SolanaPayment(ctx, models.SolanaPaymentRequest{
		InvoiceId:           invoice.Id,
		SenderWalletAddress: "not-a-wallet",
		Amount:              decimal.NewFromInt(1),
	})
	var ve *store.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "senderWalletAddress")
	assert.Contains(t, ve.Fields, "amount")

	_, err = env.svc.SolanaPayment(ctx, models.SolanaPaymentRequest{InvoiceId: 999, SenderWalletAddress: clientWallet})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreatePayment_CompletedSettlesInvoice(t *testing.T) {
	env := setupTestService(t)
	alice := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	bob := env.login(t, "bob", clientWallet, models.RoleClient)
	invoice := env.newInvoice(t, alice, "1", "pending")

	payment, err := env.svc.CreatePayment(bob, models.CreatePaymentRequest{
		InvoiceId: &invoice.Id,
		Amount:    decimal.NewFromInt(1),
		Status:    "COMPLETED",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^payment_\d+_1$`, payment.TransactionId)

	got, err := env.svc.GetInvoice(alice, invoice.Id)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)

	// Paying again fails before a payment row is written
	_, err = env.svc.CreatePayment(bob, models.CreatePaymentRequest{
		InvoiceId:     &invoice.Id,
		Amount:        decimal.NewFromInt(1),
		Status:        "COMPLETED",
		TransactionId: "second-attempt",
	})
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	payments, err := env.svc.ListPayments(bob, nil)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestConnectWallet(t *testing.T) {
	env := setupTestService(t)

	first, err := env.svc.ConnectWallet(context.Background(), models.ConnectWalletRequest{WalletAddress: clientWallet})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "user_So111111", first.User.Username)
	assert.Equal(t, "solana", first.Wallet.Network)
	require.NotNil(t, first.Balance)
	assert.Equal(t, uint64(3_000_000_000), first.Balance.Lamports)

	second, err := env.svc.ConnectWallet(context.Background(), models.ConnectWalletRequest{WalletAddress: clientWallet})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.User.Id, second.User.Id)

	_, err = env.svc.ConnectWallet(context.Background(), models.ConnectWalletRequest{WalletAddress: "0xnotsolana"})
	var ve *store.ValidationError
	assert.ErrorAs(t, err, &ve)

	session, err := env.svc.ResolveSession(context.Background(), clientWallet, 0)
	require.NoError(t, err)
	require.NotNil(t, session.User)
	assert.Equal(t, first.User.Id, session.User.Id)
}

func TestPrices_RefreshAndConvert(t *testing.T) {
	env := setupTestService(t)
	env.feed.quotes = []models.PriceQuote{
		{Symbol: "SOL", Name: "Solana", Price: decimal.NewFromInt(100), FetchedAt: env.now},
	}

	prices, err := env.svc.ListPrices(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, prices, 4)

	sol, err := env.svc.SolanaPrice(context.Background())
	require.NoError(t, err)
	assert.True(t, sol.Price.Equal(decimal.NewFromInt(100)))

	result, err := env.svc.Convert(context.Background(), models.ConvertRequest{
		Amount:       decimal.NewFromInt(250),
		FromCurrency: "USD",
		ToCurrency:   "SOL",
	})
	require.NoError(t, err)
	assert.True(t, result.To.Amount.Equal(decimal.RequireFromString("2.5")), result.To.Amount.String())

	// A failing feed keeps the cached rows
	env.feed.err = errors.New("rate limited")
	prices, err = env.svc.ListPrices(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, prices, 4)
}

func TestTransfer_MirrorFirstRead(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)

	transfer, err := env.svc.Transfer(ctx, models.TransferRequest{
		FromChain:   "solana",
		ToChain:     "ethereum",
		FromAddress: freelancerWallet,
		ToAddress:   "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		Amount:      decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferModeSimulation, transfer.Mode)
	assert.Equal(t, "SOL", transfer.TokenSymbol)

	got, err := env.svc.GetTransfer(ctx, transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPending, got.Status)

	list, err := env.svc.ListTransfers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.svc.GetTransfer(ctx, "wormhole_sim_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMirrorInvoices_RebuildRestoresIndexes(t *testing.T) {
	env := setupTestService(t)
	ctx := env.login(t, "alice", freelancerWallet, models.RoleFreelancer)
	env.newInvoice(t, ctx, "1", "pending")
	env.newInvoice(t, ctx, "2", "draft")

	stats, err := env.svc.RebuildMirror(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Invoices)

	pending, err := env.svc.MirrorInvoices(ctx, store.InvoiceFilter{Status: models.InvoiceStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Amount.Equal(decimal.NewFromInt(1)))
}
