package prices

import (
	"errors"
	"testing"

	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	quotes := map[string]decimal.Decimal{
		"SOL": decimal.RequireFromString("25"),
		"ETH": decimal.RequireFromString("2000"),
	}

	tests := []struct {
		name   string
		amount string
		from   string
		to     string
		want   string
	}{
		{"usd to crypto divides", "100", "USD", "SOL", "4"},
		{"crypto to usd multiplies", "2", "sol", "usd", "50"},
		{"crypto to crypto via usd", "1", "ETH", "SOL", "80"},
		{"rounds crypto to nine places", "1", "USD", "ETH", "0.0005"},
		{"same currency", "3", "SOL", "SOL", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Convert(decimal.RequireFromString(tt.amount), tt.from, tt.to, quotes)
			require.NoError(t, err)
			assert.True(t, result.To.Amount.Equal(decimal.RequireFromString(tt.want)),
				"expected %s, got %s", tt.want, result.To.Amount)
		})
	}
}

func TestConvert_Rejects(t *testing.T) {
	quotes := map[string]decimal.Decimal{"SOL": decimal.RequireFromString("25")}

	_, err := Convert(decimal.NewFromInt(1), "USD", "DOGE", quotes)
	var ve *store.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "toCurrency")

	_, err = Convert(decimal.Zero, "USD", "SOL", quotes)
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "amount")
}
