package server

import (
	"net/http"

	"cryptopay-go/internal/api"
	"cryptopay-go/internal/lifecycle"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type ledgerBalanceResponse struct {
	InvoiceId  int64           `json:"invoiceId"`
	CryptoType string          `json:"cryptoType"`
	Settled    decimal.Decimal `json:"settled"`
}

// invoiceDetail is a single invoice along with the statuses it may move to next.
type invoiceDetail struct {
	*models.Invoice
	AllowedTransitions []models.InvoiceStatus `json:"allowedTransitions"`
}

func newInvoiceDetail(invoice *models.Invoice) invoiceDetail {
	return invoiceDetail{Invoice: invoice, AllowedTransitions: lifecycle.NextStatuses(invoice.Status)}
}

func invoiceFilter(r *http.Request) (store.InvoiceFilter, error) {
	filter := store.InvoiceFilter{Status: models.InvoiceStatus(r.URL.Query().Get("status"))}

	var err error
	if filter.CreatorId, err = queryInt64(r, "creatorId"); err != nil {
		return filter, err
	}
	if filter.ClientId, err = queryInt64(r, "clientId"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req models.CreateInvoiceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	invoice, err := s.svc.CreateInvoice(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := invoiceFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invoices, err := s.svc.ListInvoices(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invoice, err := s.svc.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceDetail(invoice))
}

func (s *Server) getInvoiceByNumber(w http.ResponseWriter, r *http.Request) {
	invoice, err := s.svc.GetInvoiceByNumber(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceDetail(invoice))
}

func (s *Server) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.UpdateInvoiceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	invoice, err := s.svc.UpdateInvoice(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (s *Server) escrowInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invoice, err := s.svc.EscrowInvoice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (s *Server) releaseInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.ReleaseInvoice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) refundInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.RefundInvoice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) invoiceLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invoice, err := s.svc.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settled, err := s.svc.LedgerBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerBalanceResponse{
		InvoiceId:  invoice.Id,
		CryptoType: invoice.CryptoType,
		Settled:    settled,
	})
}

func (s *Server) sweepOverdue(w http.ResponseWriter, r *http.Request) {
	if models.SessionFromContext(r.Context()).UserId() == 0 {
		writeError(w, r, api.ErrUnauthorized)
		return
	}
	result, err := s.svc.SweepOverdue(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) mirrorInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := invoiceFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invoices, err := s.svc.MirrorInvoices(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) mirrorInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	invoice, err := s.svc.MirrorInvoice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}
