package server

import (
	"net/http"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/gorilla/mux"
)

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTransactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.CreateTransaction(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TransactionFilter{
		WalletAddress:   q.Get("walletAddress"),
		TransactionType: models.TransactionType(q.Get("type")),
	}
	var err error
	if filter.InvoiceId, err = queryInt64(r, "invoiceId"); err != nil {
		writeError(w, r, err)
		return
	}

	transactions, err := s.svc.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.svc.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) updateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.UpdateTransactionStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.UpdateTransactionStatus(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := s.svc.CreatePayment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	invoiceId, err := queryInt64(r, "invoiceId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := s.svc.ListPayments(r.Context(), invoiceId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) solanaPayment(w http.ResponseWriter, r *http.Request) {
	var req models.SolanaPaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.SolanaPayment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) walletBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.svc.WalletBalance(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) airdrop(w http.ResponseWriter, r *http.Request) {
	var req models.AirdropRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.Airdrop(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
