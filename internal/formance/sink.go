package formance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cryptopay-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrLedgerDisabled is returned by reads against the no-op sink.
var ErrLedgerDisabled = errors.New("ledger sink is not configured")

// LedgerSink receives settled invoice transactions. Implementations must be
// idempotent per transaction id.
type LedgerSink interface {
	RecordSettlement(ctx context.Context, tx models.Transaction, invoice *models.Invoice) error
	SettledBalance(ctx context.Context, invoiceId int64, symbol string) (decimal.Decimal, error)
	Close()
}

// NoopSink is used when no Formance stack is configured.
type NoopSink struct{}

func (NoopSink) RecordSettlement(context.Context, models.Transaction, *models.Invoice) error {
	return nil
}

func (NoopSink) SettledBalance(context.Context, int64, string) (decimal.Decimal, error) {
	return decimal.Zero, ErrLedgerDisabled
}

func (NoopSink) Close() {}

// numscriptSettlement moves value between a payer wallet and the invoice's
// settled account. Refunds run the same script with the accounts swapped.
const numscriptSettlement = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $event_type
  string $transaction_id
  string $invoice_number
  string $transaction_hash
  string $asset_symbol
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("event_type", $event_type)
set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("invoice_number", $invoice_number)
set_tx_meta("transaction_hash", $transaction_hash)
set_tx_meta("asset_symbol", $asset_symbol)
`

// settlementReference is the idempotency key for a recorded transaction.
func settlementReference(txId int64) string {
	return fmt.Sprintf("cryptopay-tx-%d", txId)
}

func walletAccount(address string) string {
	return "wallets:" + accountSegment(address)
}

func invoiceAccount(invoiceId int64) string {
	return fmt.Sprintf("invoices:%d:settled", invoiceId)
}

// accountSegment maps an arbitrary string onto the ledger's account charset.
func accountSegment(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// buildSettlement returns the ledger posting for tx, or nil when the
// transaction does not move invoice funds.
func buildSettlement(tx models.Transaction, invoice *models.Invoice) *shared.V2PostTransaction {
	if invoice == nil || tx.Status != models.TransactionStatusSuccess || !tx.Amount.IsPositive() {
		return nil
	}

	symbol := strings.ToUpper(invoice.CryptoType)
	if symbol == "" {
		symbol = "SOL"
	}

	var source, destination, eventType string
	switch tx.TransactionType {
	case models.TransactionTypePayment:
		source, destination = walletAccount(tx.SenderWalletAddress), invoiceAccount(invoice.Id)
		eventType = "invoice_paid"
	case models.TransactionTypeRefund:
		source, destination = invoiceAccount(invoice.Id), walletAccount(tx.RecipientWalletAddress)
		eventType = "invoice_refunded"
	default:
		return nil
	}

	postTx := &shared.V2PostTransaction{
		Reference: strPtr(settlementReference(tx.Id)),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptSettlement,
			Vars: map[string]string{
				"asset":            formanceAsset(symbol),
				"amount":           smallestUnits(tx.Amount, symbol),
				"source":           source,
				"destination":      destination,
				"event_type":       eventType,
				"transaction_id":   fmt.Sprintf("%d", tx.Id),
				"invoice_number":   invoice.InvoiceNumber,
				"transaction_hash": tx.TransactionHash,
				"asset_symbol":     symbol,
			},
		},
	}
	if !tx.Timestamp.IsZero() {
		ts := tx.Timestamp.UTC()
		postTx.Timestamp = &ts
	}
	return postTx
}

// RecordSettlement posts a successful payment or refund to the ledger. A
// duplicate reference means the transaction was already recorded.
func (s *Service) RecordSettlement(ctx context.Context, tx models.Transaction, invoice *models.Invoice) error {
	postTx := buildSettlement(tx, invoice)
	if postTx == nil {
		return nil
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: *postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Settlement already recorded in Formance",
				zap.String("reference", *postTx.Reference))
			return nil
		}
		return fmt.Errorf("error recording settlement for transaction %d: %w", tx.Id, err)
	}

	zap.L().Info("Settlement recorded in Formance",
		zap.String("reference", *postTx.Reference),
		zap.Int64("invoice_id", invoice.Id),
		zap.String("event_type", postTx.Script.Vars["event_type"]),
		zap.String("amount", tx.Amount.String()))
	return nil
}

// SettledBalance returns the net amount the ledger holds for an invoice.
func (s *Service) SettledBalance(ctx context.Context, invoiceId int64, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: invoiceAccount(invoiceId),
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("error reading ledger account for invoice %d: %w", invoiceId, err)
	}

	vols := resp.V2AccountResponse.Data.Volumes
	bal := volumeBalance(vols, formanceAsset(symbol))
	return bigIntToDecimal(bal, assetSymbol(formanceAsset(symbol))), nil
}
