package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu        sync.Mutex
	transfers map[string]models.BridgeTransfer
}

func newMemoryStore() *memoryStore {
	return &memoryStore{transfers: map[string]models.BridgeTransfer{}}
}

func (m *memoryStore) SaveTransfer(_ context.Context, t models.BridgeTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.Id] = t
	return nil
}

func (m *memoryStore) GetTransfer(_ context.Context, id string) (*models.BridgeTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (m *memoryStore) ListTransfers(_ context.Context, userId *int64) ([]models.BridgeTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.BridgeTransfer{}
	for _, t := range m.transfers {
		if userId == nil || (t.UserId != nil && *t.UserId == *userId) {
			out = append(out, t)
		}
	}
	return out, nil
}

// hookStore runs onSave after each transfer is written.
type hookStore struct {
	*memoryStore
	onSave func()
}

func (h *hookStore) SaveTransfer(ctx context.Context, t models.BridgeTransfer) error {
	if err := h.memoryStore.SaveTransfer(ctx, t); err != nil {
		return err
	}
	if h.onSave != nil {
		h.onSave()
	}
	return nil
}

type fakeTimer struct{ stopped bool }

func (f *fakeTimer) Stop() bool {
	was := !f.stopped
	f.stopped = true
	return was
}

// manualScheduler records settlement callbacks so tests decide when they fire.
type manualScheduler struct {
	delays []time.Duration
	funcs  []func()
	timers []*fakeTimer
}

func (m *manualScheduler) schedule(d time.Duration, f func()) Stopper {
	timer := &fakeTimer{}
	m.delays = append(m.delays, d)
	m.funcs = append(m.funcs, f)
	m.timers = append(m.timers, timer)
	return timer
}

func (m *manualScheduler) fireAll() {
	for i, f := range m.funcs {
		if !m.timers[i].stopped {
			m.timers[i].stopped = true
			f()
		}
	}
}

func sequence(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func validRequest() models.TransferRequest {
	return models.TransferRequest{
		FromChain:   "solana",
		ToChain:     "ethereum",
		FromAddress: "SoLFromAddress",
		ToAddress:   "0xToAddress",
		Amount:      decimal.RequireFromString("2.5"),
	}
}

func TestTransfer_SettlesCompleted(t *testing.T) {
	st := newMemoryStore()
	sched := &manualScheduler{}
	var settled []models.BridgeTransfer
	sim := NewSimulator(st, models.BridgeConfig{},
		WithRandom(sequence(0.1)),
		WithScheduler(sched.schedule),
		WithSettledHook(func(t models.BridgeTransfer) { settled = append(settled, t) }))

	userId := int64(4)
	transfer, err := sim.Transfer(context.Background(), &userId, validRequest())
	require.NoError(t, err)

	assert.Contains(t, transfer.Id, "wormhole_sim_")
	assert.Equal(t, models.TransferStatusPending, transfer.Status)
	assert.Equal(t, models.TransferModeSimulation, transfer.Mode)
	assert.Equal(t, "SOL", transfer.TokenSymbol)
	require.Len(t, sched.delays, 1)
	assert.Equal(t, DefaultSettleDelay, sched.delays[0])
	assert.Equal(t, 1, sim.PendingCount())

	sched.fireAll()

	stored, err := sim.Get(context.Background(), transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, stored.Status)
	assert.Len(t, stored.TransactionHash, 66)
	assert.Empty(t, stored.Error)
	assert.Len(t, settled, 1)
	assert.Equal(t, 0, sim.PendingCount())
}

func TestTransfer_SettlesFailed(t *testing.T) {
	st := newMemoryStore()
	sched := &manualScheduler{}
	// first draw decides the outcome, second picks the reason
	rate := 0.7
	sim := NewSimulator(st, models.BridgeConfig{SuccessRate: &rate},
		WithRandom(sequence(0.95, 0.25)),
		WithScheduler(sched.schedule))

	transfer, err := sim.Transfer(context.Background(), nil, validRequest())
	require.NoError(t, err)
	sched.fireAll()

	stored, err := sim.Get(context.Background(), transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusFailed, stored.Status)
	assert.Equal(t, "VAA signing timeout", stored.Error)
	assert.Empty(t, stored.TransactionHash)
}

func TestTransfer_ZeroSuccessRateAlwaysFails(t *testing.T) {
	st := newMemoryStore()
	sched := &manualScheduler{}
	rate := 0.0
	sim := NewSimulator(st, models.BridgeConfig{SuccessRate: &rate},
		WithRandom(sequence(0)),
		WithScheduler(sched.schedule))

	transfer, err := sim.Transfer(context.Background(), nil, validRequest())
	require.NoError(t, err)
	sched.fireAll()

	stored, err := sim.Get(context.Background(), transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusFailed, stored.Status)
	assert.Equal(t, failureReasons[0], stored.Error)
}

func TestTransfer_Validation(t *testing.T) {
	sim := NewSimulator(newMemoryStore(), models.BridgeConfig{}, WithScheduler((&manualScheduler{}).schedule))

	tests := []struct {
		name   string
		mutate func(*models.TransferRequest)
		field  string
	}{
		{"unknown source", func(r *models.TransferRequest) { r.FromChain = "bitcoin" }, "fromChain"},
		{"same chain", func(r *models.TransferRequest) { r.ToChain = "solana" }, "toChain"},
		{"missing address", func(r *models.TransferRequest) { r.ToAddress = " " }, "toAddress"},
		{"zero amount", func(r *models.TransferRequest) { r.Amount = decimal.Zero }, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := sim.Transfer(context.Background(), nil, req)
			var ve *store.ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestClose_CancelsPending(t *testing.T) {
	st := newMemoryStore()
	sched := &manualScheduler{}
	sim := NewSimulator(st, models.BridgeConfig{}, WithScheduler(sched.schedule))

	transfer, err := sim.Transfer(context.Background(), nil, validRequest())
	require.NoError(t, err)

	sim.Close()
	assert.True(t, sched.timers[0].stopped)
	assert.Equal(t, 0, sim.PendingCount())

	stored, err := sim.Get(context.Background(), transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPending, stored.Status)

	_, err = sim.Transfer(context.Background(), nil, validRequest())
	assert.Error(t, err)
}

func TestTransfer_CloseDuringSaveSkipsSettlement(t *testing.T) {
	st := &hookStore{memoryStore: newMemoryStore()}
	sched := &manualScheduler{}
	sim := NewSimulator(st, models.BridgeConfig{}, WithScheduler(sched.schedule))

	var once sync.Once
	st.onSave = func() { once.Do(sim.Close) }

	transfer, err := sim.Transfer(context.Background(), nil, validRequest())
	require.NoError(t, err)
	assert.Empty(t, sched.funcs)
	assert.Equal(t, 0, sim.PendingCount())

	stored, err := sim.Get(context.Background(), transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPending, stored.Status)

	_, err = sim.Transfer(context.Background(), nil, validRequest())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEstimateFees(t *testing.T) {
	tests := []struct {
		from, to  string
		amount    string
		wantTotal string
		wantUsd   string
	}{
		{"solana", "ethereum", "2", "0.001105", "337"},
		{"ethereum", "solana", "1", "0.001105", "3450.75"},
		{"polygon", "arbitrum", "10", "0.0021", "7.2"},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			estimate, err := EstimateFees(tt.from, tt.to, decimal.RequireFromString(tt.amount))
			require.NoError(t, err)
			assert.True(t, estimate.TotalFee.Equal(decimal.RequireFromString(tt.wantTotal)), "total %s", estimate.TotalFee)
			assert.True(t, estimate.EstimatedValueUsd.Equal(decimal.RequireFromString(tt.wantUsd)), "usd %s", estimate.EstimatedValueUsd)
			assert.True(t, estimate.RelayerFee.Equal(decimal.RequireFromString("0.0001")))
			assert.Equal(t, models.TransferModeSimulation, estimate.Mode)
		})
	}

	_, err := EstimateFees("solana", "solana", decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestChains(t *testing.T) {
	ids := []uint16{}
	for _, c := range Chains() {
		ids = append(ids, c.WormholeId)
	}
	assert.Equal(t, []uint16{1, 2, 5, 23}, ids)
	assert.Equal(t, "MATIC", TokenSymbol("Polygon"))
	assert.Equal(t, "UNKNOWN", TokenSymbol("cosmos"))
}
