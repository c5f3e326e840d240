package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"
)

func scanPrice(row rowScanner) (*models.CryptoPrice, error) {
	var p models.CryptoPrice
	if err := row.Scan(&p.Symbol, &p.Name, &p.Price, &p.PriceChange24h, &p.LastUpdated); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPrice writes a quote; the most recent write wins.
func (s *Service) UpsertPrice(ctx context.Context, price models.CryptoPrice) (*models.CryptoPrice, error) {
	if price.LastUpdated.IsZero() {
		price.LastUpdated = s.now()
	}

	_, err := s.db.ExecContext(ctx, queryUpsertPrice,
		price.Symbol, price.Name, price.Price, price.PriceChange24h, price.LastUpdated.UTC())
	if err != nil {
		return nil, fmt.Errorf("unable to upsert price %s: %w", price.Symbol, err)
	}
	return s.GetPrice(ctx, price.Symbol)
}

func (s *Service) GetPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error) {
	price, err := scanPrice(s.db.QueryRowContext(ctx, queryGetPrice, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("price %s: %w", symbol, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query price: %w", err)
	}
	return price, nil
}

func (s *Service) ListPrices(ctx context.Context) ([]models.CryptoPrice, error) {
	rows, err := s.db.QueryContext(ctx, queryListPrices)
	if err != nil {
		return nil, fmt.Errorf("unable to query prices: %w", err)
	}
	defer closeRows(rows)

	prices := []models.CryptoPrice{}
	for rows.Next() {
		price, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan price row: %w", err)
		}
		prices = append(prices, *price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}
	return prices, nil
}
