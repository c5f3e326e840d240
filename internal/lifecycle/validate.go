package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
)

// ValidateNewInvoice checks the fields an invoice must carry before it is stored.
// cryptoTypes restricts CryptoType when non-empty.
func ValidateNewInvoice(p *store.CreateInvoiceParams, now time.Time, cryptoTypes map[string]bool) error {
	ve := &store.ValidationError{}

	if strings.TrimSpace(p.RecipientName) == "" {
		ve.Add("recipientName", "is required")
	}
	if p.CreatorId <= 0 {
		ve.Add("creatorId", "is required")
	}
	if !p.Amount.GreaterThan(decimal.Zero) {
		ve.Add("amount", "must be greater than zero")
	}
	if p.DueDate.IsZero() {
		ve.Add("dueDate", "is required")
	} else if !p.DueDate.After(now) {
		ve.Add("dueDate", "must be in the future")
	}
	if !p.IssueDate.IsZero() && !p.DueDate.IsZero() && p.DueDate.Before(p.IssueDate) {
		ve.Add("dueDate", "must not be before the issue date")
	}
	if p.Status != models.InvoiceStatusDraft && p.Status != models.InvoiceStatusPending {
		ve.Add("status", "new invoices must be draft or pending")
	}
	if len(cryptoTypes) > 0 && p.CryptoType != "" && !cryptoTypes[p.CryptoType] {
		ve.Add("cryptoType", fmt.Sprintf("unsupported currency %q", p.CryptoType))
	}
	if p.FiatAmount.Valid && p.FiatAmount.Decimal.IsNegative() {
		ve.Add("fiatAmount", "must not be negative")
	}
	if p.CryptoAmount.Valid && p.CryptoAmount.Decimal.IsNegative() {
		ve.Add("cryptoAmount", "must not be negative")
	}
	validateItems(ve, p.Items)

	return ve.OrNil()
}

// ValidateAmount checks a monetary amount supplied outside invoice creation.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.GreaterThan(decimal.Zero) {
		return store.NewValidationError(field, "must be greater than zero")
	}
	return nil
}

// NormalizeItems fills each line's amount from quantity and rate when it was left empty.
func NormalizeItems(items []models.InvoiceItem) []models.InvoiceItem {
	out := make([]models.InvoiceItem, len(items))
	for i, item := range items {
		if item.Amount.IsZero() && !item.Quantity.IsZero() {
			item.Amount = item.Quantity.Mul(item.Rate)
		}
		out[i] = item
	}
	return out
}

func validateItems(ve *store.ValidationError, items []models.InvoiceItem) {
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case strings.TrimSpace(item.Description) == "":
			ve.Add(field+".description", "is required")
		case item.Quantity.IsNegative():
			ve.Add(field+".quantity", "must not be negative")
		case item.Rate.IsNegative():
			ve.Add(field+".rate", "must not be negative")
		case item.Amount.IsNegative():
			ve.Add(field+".amount", "must not be negative")
		}
	}
}
