package server

import (
	"net/http"
	"strconv"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

func (s *Server) listPrices(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("update"))
	prices, err := s.svc.ListPrices(r.Context(), refresh)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.svc.GetPrice(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

func (s *Server) solanaPrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.svc.SolanaPrice(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	var req models.ConvertRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.Convert(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	transfer, err := s.svc.Transfer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.TransferResponse{
		Success:       true,
		TransactionId: transfer.Id,
		Message:       "Cross-chain transfer initiated (simulated)",
		Mode:          transfer.Mode,
	})
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.svc.GetTransfer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) listTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.svc.ListTransfers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

func (s *Server) estimateFees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromChain, toChain, rawAmount := q.Get("fromChain"), q.Get("toChain"), q.Get("amount")

	ve := &store.ValidationError{}
	if fromChain == "" {
		ve.Add("fromChain", "is required")
	}
	if toChain == "" {
		ve.Add("toChain", "is required")
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		ve.Add("amount", "must be a decimal number")
	}
	if err := ve.OrNil(); err != nil {
		writeError(w, r, err)
		return
	}

	estimate, err := s.svc.EstimateFees(fromChain, toChain, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}
