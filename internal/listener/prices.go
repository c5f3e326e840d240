package listener

import (
	"context"
	"time"

	"cryptopay-go/internal/models"

	"go.uber.org/zap"
)

type PriceRefresher interface {
	RefreshPrices(ctx context.Context) ([]models.CryptoPrice, error)
}

// PriceListener keeps the cached crypto price rows fresh.
type PriceListener struct {
	refresher PriceRefresher
	*poller
}

func NewPriceListener(refresher PriceRefresher, interval time.Duration) *PriceListener {
	l := &PriceListener{refresher: refresher}
	l.poller = newPoller("price", interval, l.pollPrices)
	return l
}

func (l *PriceListener) Start(ctx context.Context) error { return l.start(ctx) }

func (l *PriceListener) Stop() { l.stop() }

func (l *PriceListener) pollPrices(ctx context.Context) {
	prices, err := l.refresher.RefreshPrices(ctx)
	if err != nil {
		// Cached rows stay in place until the feed recovers
		zap.L().Warn("Price refresh failed", zap.Error(err))
		return
	}
	zap.L().Debug("Prices refreshed", zap.Int("count", len(prices)))
}
