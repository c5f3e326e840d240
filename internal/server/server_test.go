package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cryptopay-go/internal/api"
	"cryptopay-go/internal/database"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceWallet   = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	bobWallet     = "So11111111111111111111111111111111111111112"
	malloryWallet = "11111111111111111111111111111111"
)

func setupTestServer(t *testing.T, cfg models.ServerConfig) (*Server, *database.Service) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
		SeedPrices:   true,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.CreateUser(context.Background(), store.CreateUserParams{
		Username:      "alice",
		WalletAddress: aliceWallet,
		Role:          models.RoleFreelancer,
	})
	require.NoError(t, err)

	svc := api.NewBillingService(api.Config{Store: db})
	return NewServer(cfg, svc), db
}

func createUser(t *testing.T, db *database.Service, username, wallet string, role models.Role) {
	t.Helper()
	_, err := db.CreateUser(context.Background(), store.CreateUserParams{
		Username:      username,
		WalletAddress: wallet,
		Role:          role,
	})
	require.NoError(t, err)
}

func doRequest(t *testing.T, s *Server, method, path, wallet string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if wallet != "" {
		req.Header.Set(headerWalletAddress, wallet)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func invoiceBody(amount string) map[string]any {
	return map[string]any{
		"recipientName":          "Bob Industries",
		"recipientWalletAddress": bobWallet,
		"amount":                 amount,
		"dueDate":                time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
		"status":                 "pending",
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{})

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestId))

	rec = doRequest(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvoiceEndpoints(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{})

	rec := doRequest(t, s, http.MethodPost, "/api/invoices", "", invoiceBody("1.5"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/invoices", aliceWallet, invoiceBody("1.5"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Invoice
	decodeBody(t, rec, &created)
	assert.Equal(t, "INV-000001", created.InvoiceNumber)
	assert.Equal(t, models.InvoiceStatusPending, created.Status)

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/invoices/%d", created.Id), aliceWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail invoiceDetail
	decodeBody(t, rec, &detail)
	assert.Equal(t, created.Id, detail.Id)
	assert.Equal(t, []models.InvoiceStatus{
		models.InvoiceStatusEscrowed,
		models.InvoiceStatusPaid,
		models.InvoiceStatusOverdue,
	}, detail.AllowedTransitions)

	rec = doRequest(t, s, http.MethodGet, "/api/invoices/number/inv-000001", aliceWallet, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/invoices?status=pending", aliceWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Invoice
	decodeBody(t, rec, &listed)
	assert.Len(t, listed, 1)

	rec = doRequest(t, s, http.MethodGet, "/api/invoices/999", aliceWallet, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "invoice not found", body.Error)
}

func TestTransactionSettlesInvoiceAndRejectsSecondPayment(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{})

	rec := doRequest(t, s, http.MethodPost, "/api/invoices", aliceWallet, invoiceBody("2"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var invoice models.Invoice
	decodeBody(t, rec, &invoice)

	payment := map[string]any{
		"invoiceId":              invoice.Id,
		"senderWalletAddress":    bobWallet,
		"recipientWalletAddress": aliceWallet,
		"amount":                 "2",
		"transactionType":        "payment",
		"transactionHash":        "hash-1",
	}
	rec = doRequest(t, s, http.MethodPost, "/api/transactions", aliceWallet, payment)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result models.TransactionResult
	decodeBody(t, rec, &result)
	require.NotNil(t, result.Invoice)
	assert.Equal(t, models.InvoiceStatusPaid, result.Invoice.Status)

	payment["transactionHash"] = "hash-2"
	rec = doRequest(t, s, http.MethodPost, "/api/transactions", aliceWallet, payment)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, s, http.MethodPost, fmt.Sprintf("/api/invoices/%d/refund", invoice.Id), aliceWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &result)
	assert.Equal(t, models.InvoiceStatusRefunded, result.Invoice.Status)
}

func TestRequestValidation(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{})

	rec := doRequest(t, s, http.MethodPost, "/api/invoices", aliceWallet, map[string]any{"amount": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "validation failed", body.Error)
	assert.Equal(t, "is required", body.Fields["recipientName"])

	rec = doRequest(t, s, http.MethodPost, "/api/users/role", aliceWallet, `{"role":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/users/role", aliceWallet, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Fields["role"], "client")

	rec = doRequest(t, s, http.MethodGet, "/api/walrus/wormhole/estimate-fees?fromChain=solana", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Fields, "toChain")
	assert.Contains(t, body.Fields, "amount")

	rec = doRequest(t, s, http.MethodGet, "/api/walrus/wormhole/estimate-fees?fromChain=solana&toChain=ethereum&amount=10", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionHeaders(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/users/current", nil)
	req.Header.Set(headerUserId, "1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	decodeBody(t, rec, &user)
	assert.Equal(t, "alice", user.Username)

	req = httptest.NewRequest(http.MethodGet, "/api/users/current", nil)
	req.Header.Set(headerUserId, "abc")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnconfiguredCollaborators(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{})

	transfer := map[string]any{
		"fromChain":   "solana",
		"toChain":     "ethereum",
		"fromAddress": aliceWallet,
		"toAddress":   "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		"amount":      "1",
	}
	rec := doRequest(t, s, http.MethodPost, "/api/walrus/wormhole/transfer", aliceWallet, transfer)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/invoices/1/ledger", aliceWallet, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	rec := doRequest(t, s, http.MethodGet, "/api/crypto-prices", aliceWallet, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/crypto-prices", aliceWallet, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// An unregistered wallet is limited by its remote host, a separate bucket
	rec = doRequest(t, s, http.MethodGet, "/api/crypto-prices", bobWallet, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIgnoresUnknownWalletHeaders(t *testing.T) {
	s, _ := setupTestServer(t, models.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	limited := 0
	for i := 0; i < 20; i++ {
		rec := doRequest(t, s, http.MethodGet, "/api/crypto-prices", fmt.Sprintf("rotated-%d", i), nil)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 19, limited)
	assert.Len(t, s.limiter.clients, 1)
}

func TestInvoiceAuthorization(t *testing.T) {
	s, db := setupTestServer(t, models.ServerConfig{})
	createUser(t, db, "bob", bobWallet, models.RoleClient)
	createUser(t, db, "mallory", malloryWallet, models.RoleClient)

	rec := doRequest(t, s, http.MethodPost, "/api/invoices", aliceWallet, invoiceBody("2"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var invoice models.Invoice
	decodeBody(t, rec, &invoice)

	payment := map[string]any{
		"invoiceId":              invoice.Id,
		"senderWalletAddress":    bobWallet,
		"recipientWalletAddress": aliceWallet,
		"amount":                 "2",
		"transactionType":        "payment",
		"transactionHash":        "hash-pay",
	}
	refund := map[string]any{
		"invoiceId":              invoice.Id,
		"senderWalletAddress":    aliceWallet,
		"recipientWalletAddress": bobWallet,
		"amount":                 "2",
		"transactionType":        "refund",
		"transactionHash":        "hash-refund",
	}
	solanaPayment := map[string]any{
		"invoiceId":           invoice.Id,
		"senderWalletAddress": bobWallet,
		"amount":              "2",
	}

	invoicePath := fmt.Sprintf("/api/invoices/%d", invoice.Id)
	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, invoicePath, nil},
		{http.MethodGet, invoicePath + "/ledger", nil},
		{http.MethodGet, "/api/invoices/number/" + invoice.InvoiceNumber, nil},
		{http.MethodGet, fmt.Sprintf("/api/invoices?creatorId=%d", invoice.CreatorId), nil},
		{http.MethodGet, fmt.Sprintf("/api/walrus/invoices?creatorId=%d", invoice.CreatorId), nil},
		{http.MethodGet, fmt.Sprintf("/api/walrus/invoices/%d", invoice.Id), nil},
		{http.MethodGet, fmt.Sprintf("/api/payments?invoiceId=%d", invoice.Id), nil},
		{http.MethodGet, fmt.Sprintf("/api/transactions?invoiceId=%d", invoice.Id), nil},
		{http.MethodGet, "/api/transactions?walletAddress=" + aliceWallet, nil},
		{http.MethodPost, "/api/transactions", payment},
		{http.MethodPost, "/api/transactions", refund},
		{http.MethodPost, "/api/solana/payment", solanaPayment},
	}

	for _, rt := range routes {
		rec := doRequest(t, s, rt.method, rt.path, "", rt.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "anonymous %s %s: %s", rt.method, rt.path, rec.Body.String())

		rec = doRequest(t, s, rt.method, rt.path, malloryWallet, rt.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, "outsider %s %s: %s", rt.method, rt.path, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPost, "/api/invoices/overdue/sweep", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The recipient wallet holder may pay
	rec = doRequest(t, s, http.MethodPost, "/api/transactions", bobWallet, payment)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result models.TransactionResult
	decodeBody(t, rec, &result)
	txPath := fmt.Sprintf("/api/transactions/%d", result.Transaction.Id)

	rec = doRequest(t, s, http.MethodGet, txPath, bobWallet, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, wallet := range []string{"", malloryWallet} {
		want := http.StatusForbidden
		if wallet == "" {
			want = http.StatusUnauthorized
		}
		rec = doRequest(t, s, http.MethodGet, txPath, wallet, nil)
		assert.Equal(t, want, rec.Code)
		rec = doRequest(t, s, http.MethodPatch, txPath+"/status", wallet, map[string]string{"status": "failed"})
		assert.Equal(t, want, rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, invoicePath, aliceWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Invoice
	decodeBody(t, rec, &got)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)

	rec = doRequest(t, s, http.MethodGet, invoicePath, bobWallet, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newRateLimiter(1, 1)
	now := time.Now()
	assert.True(t, rl.allow("a", now))
	assert.False(t, rl.allow("a", now))

	rl.cleanup(now.Add(limiterIdleTimeout + time.Second))
	assert.Empty(t, rl.clients)

	rl.stop()
	rl.stop()
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", store.NewValidationError("amount", "must be greater than zero"), http.StatusBadRequest, "validation failed"},
		{"not found", fmt.Errorf("transfer x: %w", store.ErrNotFound), http.StatusNotFound, "transfer not found"},
		{"bare not found", store.ErrNotFound, http.StatusNotFound, "not found"},
		{"transition", &store.TransitionError{InvoiceId: 1, From: models.InvoiceStatusPaid, To: models.InvoiceStatusPaid}, http.StatusConflict, "invoice 1 cannot move from paid to paid"},
		{"locked", api.ErrInvoiceLocked, http.StatusConflict, api.ErrInvoiceLocked.Error()},
		{"forbidden", api.ErrForbidden, http.StatusForbidden, api.ErrForbidden.Error()},
		{"unavailable", api.ErrUnavailable, http.StatusServiceUnavailable, api.ErrUnavailable.Error()},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}
