package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cryptopay-go/internal/api"
	"cryptopay-go/internal/metrics"
	"cryptopay-go/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const limiterCleanupInterval = time.Minute

// Server exposes the billing service over HTTP.
type Server struct {
	svc        *api.BillingService
	router     *mux.Router
	httpServer *http.Server
	limiter    *rateLimiter
}

func NewServer(cfg models.ServerConfig, svc *api.BillingService) *Server {
	s := &Server{
		svc:     svc,
		router:  mux.NewRouter(),
		limiter: newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.limiter.startCleanup(limiterCleanupInterval)

	zap.L().Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("Shutting down HTTP server")
	s.limiter.stop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(recoverer, requestLogger, metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()
	a.Use(s.session, s.limiter.middleware)

	a.HandleFunc("/users/current", s.currentUser).Methods(http.MethodGet)
	a.HandleFunc("/users/role", s.setRole).Methods(http.MethodPost)
	a.HandleFunc("/wallet/connect", s.connectWallet).Methods(http.MethodPost)
	a.HandleFunc("/wallets", s.listWallets).Methods(http.MethodGet)
	a.HandleFunc("/wallets", s.createWallet).Methods(http.MethodPost)

	a.HandleFunc("/clients", s.listClients).Methods(http.MethodGet)
	a.HandleFunc("/clients", s.createClient).Methods(http.MethodPost)
	a.HandleFunc("/clients/{id:[0-9]+}", s.getClient).Methods(http.MethodGet)
	a.HandleFunc("/clients/{id:[0-9]+}", s.updateClient).Methods(http.MethodPatch)
	a.HandleFunc("/clients/{id:[0-9]+}", s.deleteClient).Methods(http.MethodDelete)

	a.HandleFunc("/contacts", s.listContacts).Methods(http.MethodGet)
	a.HandleFunc("/contacts", s.createContact).Methods(http.MethodPost)
	a.HandleFunc("/contacts/{id:[0-9]+}", s.deleteContact).Methods(http.MethodDelete)

	a.HandleFunc("/invoices", s.listInvoices).Methods(http.MethodGet)
	a.HandleFunc("/invoices", s.createInvoice).Methods(http.MethodPost)
	a.HandleFunc("/invoices/overdue/sweep", s.sweepOverdue).Methods(http.MethodPost)
	a.HandleFunc("/invoices/number/{number}", s.getInvoiceByNumber).Methods(http.MethodGet)
	a.HandleFunc("/invoices/{id:[0-9]+}", s.getInvoice).Methods(http.MethodGet)
	a.HandleFunc("/invoices/{id:[0-9]+}", s.updateInvoice).Methods(http.MethodPatch)
	a.HandleFunc("/invoices/{id:[0-9]+}/escrow", s.escrowInvoice).Methods(http.MethodPost)
	a.HandleFunc("/invoices/{id:[0-9]+}/release", s.releaseInvoice).Methods(http.MethodPost)
	a.HandleFunc("/invoices/{id:[0-9]+}/refund", s.refundInvoice).Methods(http.MethodPost)
	a.HandleFunc("/invoices/{id:[0-9]+}/ledger", s.invoiceLedger).Methods(http.MethodGet)

	a.HandleFunc("/transactions", s.listTransactions).Methods(http.MethodGet)
	a.HandleFunc("/transactions", s.createTransaction).Methods(http.MethodPost)
	a.HandleFunc("/transactions/{id:[0-9]+}", s.getTransaction).Methods(http.MethodGet)
	a.HandleFunc("/transactions/{id:[0-9]+}/status", s.updateTransactionStatus).Methods(http.MethodPatch)

	a.HandleFunc("/payments", s.listPayments).Methods(http.MethodGet)
	a.HandleFunc("/payments", s.createPayment).Methods(http.MethodPost)

	a.HandleFunc("/crypto-prices", s.listPrices).Methods(http.MethodGet)
	a.HandleFunc("/crypto-prices/{symbol}", s.getPrice).Methods(http.MethodGet)
	a.HandleFunc("/convert", s.convert).Methods(http.MethodPost)

	a.HandleFunc("/solana/price", s.solanaPrice).Methods(http.MethodGet)
	a.HandleFunc("/solana/payment", s.solanaPayment).Methods(http.MethodPost)
	a.HandleFunc("/solana/balance/{address}", s.walletBalance).Methods(http.MethodGet)
	a.HandleFunc("/solana/airdrop", s.airdrop).Methods(http.MethodPost)

	a.HandleFunc("/walrus/invoices", s.mirrorInvoices).Methods(http.MethodGet)
	a.HandleFunc("/walrus/invoices/{id:[0-9]+}", s.mirrorInvoice).Methods(http.MethodGet)
	a.HandleFunc("/walrus/invoices/{id:[0-9]+}", s.updateInvoice).Methods(http.MethodPatch)
	a.HandleFunc("/walrus/wormhole/transfer", s.transfer).Methods(http.MethodPost)
	a.HandleFunc("/walrus/wormhole/transfer/{id}", s.getTransfer).Methods(http.MethodGet)
	a.HandleFunc("/walrus/wormhole/transfers", s.listTransfers).Methods(http.MethodGet)
	a.HandleFunc("/walrus/wormhole/estimate-fees", s.estimateFees).Methods(http.MethodGet)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
