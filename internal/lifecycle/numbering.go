package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const invoiceNumberPrefix = "INV-"

// FormatInvoiceNumber derives the invoice number from its row id.
func FormatInvoiceNumber(id int64) string {
	return fmt.Sprintf("%s%06d", invoiceNumberPrefix, id)
}

// CollisionInvoiceNumber is used when an explicitly chosen number already
// occupies the generated one.
func CollisionInvoiceNumber(id int64, attempt int) string {
	return fmt.Sprintf("%s-%d", FormatInvoiceNumber(id), attempt)
}

// NormalizeInvoiceNumber trims and upper-cases a caller supplied invoice number
// so lookups match the stored form.
func NormalizeInvoiceNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// ReleaseReference is the transaction hash recorded for a simulated escrow release.
func ReleaseReference(invoiceId int64, at time.Time) string {
	return fmt.Sprintf("release_%d_%d", at.UnixMilli(), invoiceId)
}

// RefundReference is the transaction hash recorded for a simulated refund.
func RefundReference(invoiceId int64, at time.Time) string {
	return fmt.Sprintf("refund_%d_%d", at.UnixMilli(), invoiceId)
}

// EscrowAccountAddress names the simulated holding account for an invoice.
func EscrowAccountAddress(invoiceId int64) string {
	return fmt.Sprintf("escrow_sim_%06d", invoiceId)
}

// DeriveFiat converts a crypto amount to USD at the given price, rounded to cents.
func DeriveFiat(amount, price decimal.Decimal) decimal.NullDecimal {
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(amount.Mul(price).Round(2))
}

// PaymentReference is the transaction hash recorded for a payment submitted
// without an on-chain signature.
func PaymentReference(invoiceId int64, at time.Time) string {
	return fmt.Sprintf("payment_%d_%d", at.UnixMilli(), invoiceId)
}
