package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptopay-go/internal/metrics"
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/prices"

	"go.uber.org/zap"
)

// RefreshPrices pulls fresh quotes from the feed and upserts the cached rows.
func (s *BillingService) RefreshPrices(ctx context.Context) ([]models.CryptoPrice, error) {
	if s.feed == nil {
		return nil, fmt.Errorf("price feed: %w", ErrUnavailable)
	}

	start := time.Now()
	quotes, err := s.feed.FetchQuotes(ctx)
	if err != nil {
		metrics.RecordPriceRefresh(time.Since(start), false)
		return nil, fmt.Errorf("unable to fetch quotes: %w", err)
	}

	updated := make([]models.CryptoPrice, 0, len(quotes))
	for _, quote := range quotes {
		price, err := s.db.UpsertPrice(ctx, models.CryptoPrice{
			Symbol:         quote.Symbol,
			Name:           quote.Name,
			Price:          quote.Price,
			PriceChange24h: quote.PriceChange24h,
			LastUpdated:    quote.FetchedAt,
		})
		if err != nil {
			metrics.RecordPriceRefresh(time.Since(start), false)
			return nil, err
		}
		updated = append(updated, *price)
	}

	metrics.RecordPriceRefresh(time.Since(start), true)
	return updated, nil
}

// ListPrices returns the cached quotes, refreshing them first when asked. A
// failed refresh falls back to the cache.
func (s *BillingService) ListPrices(ctx context.Context, refresh bool) ([]models.CryptoPrice, error) {
	if refresh {
		if _, err := s.RefreshPrices(ctx); err != nil {
			zap.L().Warn("Price refresh failed, serving cached prices", zap.Error(err))
		}
	}
	return s.db.ListPrices(ctx)
}

func (s *BillingService) GetPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error) {
	return s.db.GetPrice(ctx, strings.ToUpper(symbol))
}

func (s *BillingService) SolanaPrice(ctx context.Context) (*models.SolanaPrice, error) {
	price, err := s.db.GetPrice(ctx, "SOL")
	if err != nil {
		return nil, err
	}
	return &models.SolanaPrice{
		Symbol:         price.Symbol,
		Price:          price.Price,
		PriceChange24h: price.PriceChange24h,
		LastUpdated:    price.LastUpdated,
	}, nil
}

func (s *BillingService) Convert(ctx context.Context, req models.ConvertRequest) (*models.ConvertResult, error) {
	cached, err := s.db.ListPrices(ctx)
	if err != nil {
		return nil, err
	}
	return prices.Convert(req.Amount, req.FromCurrency, req.ToCurrency, prices.QuoteMap(cached))
}
