package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptopay-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
	"bitcoin": {"usd": 64000.5, "usd_24h_change": 1.23456},
	"usd-coin": {"usd": 1.0},
	"solana": {"usd": 168.5, "usd_24h_change": -2.5}
}`

func TestFetchQuotes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/simple/price", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	client := newClient(srv.Client(), srv.URL+"/", models.DefaultAssets)
	quotes, err := client.FetchQuotes(context.Background())
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "ids=bitcoin%2Cethereum%2Cusd-coin%2Csolana")
	assert.Contains(t, gotQuery, "include_24hr_change=true")

	// ethereum is absent from the payload and is skipped
	require.Len(t, quotes, 3)
	bySymbol := map[string]models.PriceQuote{}
	for _, q := range quotes {
		bySymbol[q.Symbol] = q
	}

	assert.True(t, bySymbol["BTC"].Price.Equal(decimal.RequireFromString("64000.5")))
	assert.True(t, bySymbol["BTC"].PriceChange24h.Equal(decimal.RequireFromString("1.2346")))
	assert.True(t, bySymbol["USDC"].PriceChange24h.IsZero())
	assert.True(t, bySymbol["SOL"].PriceChange24h.Equal(decimal.RequireFromString("-2.5")))
	assert.Equal(t, "Solana", bySymbol["SOL"].Name)
}

func TestFetchQuotes_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusTooManyRequests, `{"status":{"error_code":429}}`},
		{"malformed json", http.StatusOK, `{"bitcoin": {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newClient(srv.Client(), srv.URL, models.DefaultAssets)
			_, err := client.FetchQuotes(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(models.PriceConfig{}, models.DefaultAssets)
	assert.Error(t, err)

	_, err = NewClient(models.PriceConfig{APIURL: "https://api.coingecko.com/api/v3"}, nil)
	assert.Error(t, err)

	client, err := NewClient(models.PriceConfig{APIURL: "https://api.coingecko.com/api/v3"}, models.DefaultAssets)
	require.NoError(t, err)
	assert.Equal(t, "https://api.coingecko.com/api/v3", client.baseURL)
}
