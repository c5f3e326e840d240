package listener

import (
	"context"
	"time"

	"cryptopay-go/internal/models"

	"go.uber.org/zap"
)

type InvoiceSweeper interface {
	SweepOverdue(ctx context.Context) (*models.SweepResult, error)
}

// OverdueSweeper periodically marks pending invoices past their due date as overdue.
type OverdueSweeper struct {
	sweeper InvoiceSweeper
	*poller
}

func NewOverdueSweeper(sweeper InvoiceSweeper, interval time.Duration) *OverdueSweeper {
	s := &OverdueSweeper{sweeper: sweeper}
	s.poller = newPoller("overdue", interval, s.sweep)
	return s
}

func (s *OverdueSweeper) Start(ctx context.Context) error { return s.start(ctx) }

func (s *OverdueSweeper) Stop() { s.stop() }

func (s *OverdueSweeper) sweep(ctx context.Context) {
	result, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		zap.L().Error("Overdue sweep failed", zap.Error(err))
		return
	}
	if len(result.MarkedOverdue) > 0 {
		zap.L().Info("Invoices marked overdue",
			zap.Int("checked", result.Checked),
			zap.Int64s("invoice_ids", result.MarkedOverdue))
	}
}
