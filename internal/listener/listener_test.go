package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cryptopay-go/internal/models"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshPrices(context.Context) ([]models.CryptoPrice, error) {
	r.calls.Add(1)
	return []models.CryptoPrice{{Symbol: "SOL"}}, r.err
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) SweepOverdue(context.Context) (*models.SweepResult, error) {
	s.calls.Add(1)
	return &models.SweepResult{Checked: 1, MarkedOverdue: []int64{1}}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPriceListener_PollsImmediatelyAndOnTick(t *testing.T) {
	refresher := &countingRefresher{}
	l := NewPriceListener(refresher, 10*time.Millisecond)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return refresher.calls.Load() >= 3 })
	l.Stop()

	after := refresher.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if refresher.calls.Load() != after {
		t.Error("listener kept polling after Stop")
	}
}

func TestPriceListener_SurvivesRefreshErrors(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("feed down")}
	l := NewPriceListener(refresher, 10*time.Millisecond)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return refresher.calls.Load() >= 2 })
	l.Stop()
}

func TestOverdueSweeper_StopsOnContextCancel(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewOverdueSweeper(sweeper, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return sweeper.calls.Load() >= 1 })
	cancel()

	// Stop must not block once the loop has exited on its own
	s.Stop()
}

func TestListener_InvalidInterval(t *testing.T) {
	l := NewPriceListener(&countingRefresher{}, 0)
	if err := l.Start(context.Background()); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval, got %v", err)
	}
	l.Stop()
}

func TestListener_StopTwice(t *testing.T) {
	s := NewOverdueSweeper(&countingSweeper{}, time.Hour)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
	s.Stop()
}
