package prices

import (
	"fmt"
	"strings"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
)

const (
	Fiat = "USD"

	fiatPlaces   = 2
	cryptoPlaces = 9
	ratePlaces   = 12
)

// Convert converts amount between USD and tracked currencies using USD quotes.
// USD to crypto divides by the price, crypto to USD multiplies, and crypto to
// crypto goes through USD.
func Convert(amount decimal.Decimal, from, to string, quotes map[string]decimal.Decimal) (*models.ConvertResult, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	ve := &store.ValidationError{}
	if !amount.GreaterThan(decimal.Zero) {
		ve.Add("amount", "must be greater than zero")
	}
	fromPrice, ok := usdPrice(from, quotes)
	if !ok {
		ve.Add("fromCurrency", fmt.Sprintf("unsupported currency %q", from))
	}
	toPrice, ok := usdPrice(to, quotes)
	if !ok {
		ve.Add("toCurrency", fmt.Sprintf("unsupported currency %q", to))
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	rate := fromPrice.DivRound(toPrice, ratePlaces)
	converted := amount.Mul(fromPrice).DivRound(toPrice, ratePlaces)
	if to == Fiat {
		converted = converted.Round(fiatPlaces)
	} else {
		converted = converted.Round(cryptoPlaces)
	}

	return &models.ConvertResult{
		From: models.CurrencyAmount{Currency: from, Amount: amount},
		To:   models.CurrencyAmount{Currency: to, Amount: converted},
		Rate: rate,
	}, nil
}

func usdPrice(symbol string, quotes map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if symbol == Fiat {
		return decimal.NewFromInt(1), true
	}
	price, ok := quotes[symbol]
	if !ok || !price.GreaterThan(decimal.Zero) {
		return decimal.Zero, false
	}
	return price, true
}

// QuoteMap indexes stored prices by symbol.
func QuoteMap(prices []models.CryptoPrice) map[string]decimal.Decimal {
	quotes := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		quotes[strings.ToUpper(p.Symbol)] = p.Price
	}
	return quotes
}
