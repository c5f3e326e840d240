package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func TestPaymentsAndTransfers(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, svc, "alice", models.RoleClient)
	invoice, err := svc.CreateInvoice(ctx, invoiceParams(user.Id))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	payment, err := svc.CreatePayment(ctx, store.CreatePaymentParams{
		UserId:     user.Id,
		InvoiceId:  &invoice.Id,
		Amount:     decimal.RequireFromString("61.48"),
		CryptoType: "SOL",
		Status:     models.PaymentStatusPending,
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	byUser, err := svc.ListPayments(ctx, user.Id)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	byInvoice, err := svc.ListPaymentsByInvoice(ctx, invoice.Id)
	if err != nil {
		t.Fatalf("ListPaymentsByInvoice failed: %v", err)
	}
	if len(byUser) != 1 || len(byInvoice) != 1 || byInvoice[0].Id != payment.Id {
		t.Errorf("Expected the payment in both listings, got %d and %d", len(byUser), len(byInvoice))
	}

	now := time.Now().UTC()
	transfer := models.BridgeTransfer{
		Id:          "wormhole_sim_test",
		UserId:      &user.Id,
		FromChain:   "solana",
		ToChain:     "ethereum",
		FromAddress: "From",
		ToAddress:   "To",
		TokenSymbol: "SOL",
		Amount:      decimal.NewFromInt(3),
		Status:      models.TransferStatusPending,
		Mode:        models.TransferModeSimulation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := svc.SaveTransfer(ctx, transfer); err != nil {
		t.Fatalf("SaveTransfer failed: %v", err)
	}

	transfer.Status = models.TransferStatusCompleted
	transfer.TransactionHash = "0xabc"
	transfer.UpdatedAt = now.Add(15 * time.Second)
	if err := svc.SaveTransfer(ctx, transfer); err != nil {
		t.Fatalf("SaveTransfer update failed: %v", err)
	}

	stored, err := svc.GetTransfer(ctx, transfer.Id)
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if stored.Status != models.TransferStatusCompleted || stored.TransactionHash != "0xabc" {
		t.Errorf("Expected completed transfer with hash, got %s %q", stored.Status, stored.TransactionHash)
	}

	mine, err := svc.ListTransfers(ctx, &user.Id)
	if err != nil {
		t.Fatalf("ListTransfers failed: %v", err)
	}
	if len(mine) != 1 {
		t.Errorf("Expected 1 transfer, got %d", len(mine))
	}

	if _, err := svc.GetTransfer(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreatePayment_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewServiceFromDB(db)
	mock.ExpectExec("INSERT INTO payments").WillReturnError(errors.New("disk I/O error"))

	_, err = svc.CreatePayment(context.Background(), store.CreatePaymentParams{
		UserId: 1,
		Amount: decimal.NewFromInt(1),
		Status: models.PaymentStatusPending,
	})
	if err == nil {
		t.Fatal("Expected error from failing insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}

func TestCreateTransaction_RollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	svc := NewServiceFromDB(db)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM transactions WHERE transaction_hash").
		WithArgs("hash1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO transactions").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, _, err = svc.CreateTransaction(context.Background(), store.CreateTransactionParams{
		SenderWalletAddress:    "A",
		RecipientWalletAddress: "B",
		Amount:                 decimal.NewFromInt(1),
		TransactionType:        models.TransactionTypeConversion,
		Status:                 models.TransactionStatusSuccess,
		TransactionHash:        "hash1",
	})
	if err == nil {
		t.Fatal("Expected error from failing insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}
