package lifecycle

import (
	"time"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"
)

// transitions is the invoice state machine. Refunded is terminal and the only
// backwards-looking move is a refund out of paid or escrowed.
var transitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceStatusDraft: {
		models.InvoiceStatusPending,
		models.InvoiceStatusEscrowed,
		models.InvoiceStatusPaid,
		models.InvoiceStatusOverdue,
	},
	models.InvoiceStatusPending: {
		models.InvoiceStatusEscrowed,
		models.InvoiceStatusPaid,
		models.InvoiceStatusOverdue,
	},
	models.InvoiceStatusOverdue: {
		models.InvoiceStatusEscrowed,
		models.InvoiceStatusPaid,
	},
	models.InvoiceStatusEscrowed: {
		models.InvoiceStatusPaid,
		models.InvoiceStatusRefunded,
	},
	models.InvoiceStatusPaid: {
		models.InvoiceStatusRefunded,
	},
	models.InvoiceStatusRefunded: {},
}

// CanTransition reports whether an invoice may move from one status to another.
// Staying in the same status is not a transition.
func CanTransition(from, to models.InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from the given one.
func NextStatuses(from models.InvoiceStatus) []models.InvoiceStatus {
	next := transitions[from]
	out := make([]models.InvoiceStatus, len(next))
	copy(out, next)
	return out
}

// Transition moves the invoice to the target status and stamps the matching date.
func Transition(invoice *models.Invoice, to models.InvoiceStatus, at time.Time) error {
	if !CanTransition(invoice.Status, to) {
		return &store.TransitionError{InvoiceId: invoice.Id, From: invoice.Status, To: to}
	}

	stamp := at.UTC()
	switch to {
	case models.InvoiceStatusPaid:
		invoice.PaymentDate = &stamp
	case models.InvoiceStatusRefunded:
		invoice.RefundDate = &stamp
	case models.InvoiceStatusEscrowed:
		invoice.EscrowDate = &stamp
	}
	invoice.Status = to
	return nil
}

// TargetStatus returns the invoice status a settled transaction drives its
// invoice to. Conversions and unsettled transactions have no effect.
func TargetStatus(txType models.TransactionType, txStatus models.TransactionStatus) (models.InvoiceStatus, bool) {
	if txStatus != models.TransactionStatusSuccess {
		return "", false
	}
	switch txType {
	case models.TransactionTypePayment:
		return models.InvoiceStatusPaid, true
	case models.TransactionTypeRefund:
		return models.InvoiceStatusRefunded, true
	default:
		return "", false
	}
}

// ApplyTransaction updates the invoice for a transaction linked to it.
// It reports whether the invoice changed.
func ApplyTransaction(invoice *models.Invoice, tx *models.Transaction) (bool, error) {
	target, ok := TargetStatus(tx.TransactionType, tx.Status)
	if !ok {
		return false, nil
	}

	if err := Transition(invoice, target, tx.Timestamp); err != nil {
		return false, err
	}

	if target == models.InvoiceStatusPaid {
		switch {
		case tx.TransactionHash != "":
			invoice.TransactionHash = tx.TransactionHash
		case tx.Signature != "":
			invoice.TransactionHash = tx.Signature
		}
	}
	return true, nil
}

// Editable reports whether an invoice's billed terms may still change.
func Editable(status models.InvoiceStatus) bool {
	return status == models.InvoiceStatusDraft || status == models.InvoiceStatusPending
}

// IsOverdue reports whether a pending invoice has passed its due date.
func IsOverdue(invoice *models.Invoice, now time.Time) bool {
	return invoice.Status == models.InvoiceStatusPending && invoice.DueDate.Before(now)
}
