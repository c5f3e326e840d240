package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultSettleDelay = 15 * time.Second
	DefaultSuccessRate = 0.7

	idPrefix      = "wormhole_sim_"
	settleTimeout = 10 * time.Second
)

var ErrClosed = errors.New("bridge simulator is shut down")

var failureReasons = []string{
	"Insufficient relayer fee",
	"VAA signing timeout",
	"Destination chain congestion",
	"Bridge contract error",
	"Token approval failed",
}

// TransferStore persists transfers; store.Store satisfies it.
type TransferStore interface {
	SaveTransfer(ctx context.Context, transfer models.BridgeTransfer) error
	GetTransfer(ctx context.Context, id string) (*models.BridgeTransfer, error)
	ListTransfers(ctx context.Context, userId *int64) ([]models.BridgeTransfer, error)
}

// TransferMirror receives a copy of every saved transfer.
type TransferMirror interface {
	PutTransfer(ctx context.Context, transfer models.BridgeTransfer) error
}

type Option func(*Simulator)

// WithRandom replaces the source of outcomes; f must return values in [0, 1).
func WithRandom(f func() float64) Option {
	return func(s *Simulator) { s.random = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithScheduler replaces time.AfterFunc, mainly so tests can settle synchronously.
func WithScheduler(schedule func(d time.Duration, f func()) Stopper) Option {
	return func(s *Simulator) { s.schedule = schedule }
}

func WithMirror(m TransferMirror) Option {
	return func(s *Simulator) { s.mirror = m }
}

// WithSettledHook is called after each transfer reaches a terminal state.
func WithSettledHook(hook func(models.BridgeTransfer)) Option {
	return func(s *Simulator) { s.onSettled = hook }
}

// Stopper is satisfied by *time.Timer.
type Stopper interface {
	Stop() bool
}

// Simulator stands in for a cross-chain bridge. Transfers are recorded as
// pending and settle after a delay to completed or failed at random. Every
// record is marked with the simulation mode.
type Simulator struct {
	store       TransferStore
	mirror      TransferMirror
	settleDelay time.Duration
	successRate float64
	random      func() float64
	now         func() time.Time
	schedule    func(d time.Duration, f func()) Stopper
	onSettled   func(models.BridgeTransfer)

	mu      sync.Mutex
	pending map[string]Stopper
	closed  bool
	wg      sync.WaitGroup
}

func NewSimulator(st TransferStore, cfg models.BridgeConfig, opts ...Option) *Simulator {
	delay := cfg.SettleDelay
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	rate := DefaultSuccessRate
	if cfg.SuccessRate != nil {
		rate = math.Min(math.Max(*cfg.SuccessRate, 0), 1)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rngMu sync.Mutex

	s := &Simulator{
		store:       st,
		settleDelay: delay,
		successRate: rate,
		random: func() float64 {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.Float64()
		},
		now: func() time.Time { return time.Now().UTC() },
		schedule: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
		pending: make(map[string]Stopper),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateRoute(fromChain, toChain string) (Chain, Chain, error) {
	ve := &store.ValidationError{}
	from, fromOk := LookupChain(fromChain)
	if !fromOk {
		ve.Add("fromChain", fmt.Sprintf("unsupported chain %q", fromChain))
	}
	to, toOk := LookupChain(toChain)
	if !toOk {
		ve.Add("toChain", fmt.Sprintf("unsupported chain %q", toChain))
	}
	if fromOk && toOk && from.Name == to.Name {
		ve.Add("toChain", "must differ from fromChain")
	}
	return from, to, ve.OrNil()
}

// Transfer validates and records a pending transfer and schedules its settlement.
func (s *Simulator) Transfer(ctx context.Context, userId *int64, req models.TransferRequest) (*models.BridgeTransfer, error) {
	from, to, err := validateRoute(req.FromChain, req.ToChain)
	ve, _ := err.(*store.ValidationError)
	if ve == nil {
		ve = &store.ValidationError{}
	}
	if strings.TrimSpace(req.FromAddress) == "" {
		ve.Add("fromAddress", "is required")
	}
	if strings.TrimSpace(req.ToAddress) == "" {
		ve.Add("toAddress", "is required")
	}
	if !req.Amount.GreaterThan(decimal.Zero) {
		ve.Add("amount", "must be greater than zero")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	now := s.now()
	transfer := models.BridgeTransfer{
		Id:           idPrefix + uuid.New().String(),
		UserId:       userId,
		FromChain:    from.Name,
		ToChain:      to.Name,
		FromAddress:  req.FromAddress,
		ToAddress:    req.ToAddress,
		TokenAddress: req.TokenAddress,
		TokenSymbol:  TokenSymbol(from.Name),
		Amount:       req.Amount,
		Status:       models.TransferStatusPending,
		Mode:         models.TransferModeSimulation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.save(ctx, transfer); err != nil {
		return nil, err
	}

	zap.L().Info("Cross-chain transfer accepted",
		zap.String("transfer_id", transfer.Id),
		zap.String("from_chain", transfer.FromChain),
		zap.String("to_chain", transfer.ToChain),
		zap.String("amount", transfer.Amount.String()),
		zap.Duration("settle_delay", s.settleDelay))

	s.mu.Lock()
	defer s.mu.Unlock()
	// Close may have run while the transfer was being saved; it stays pending
	// like any settlement Close cancels.
	if s.closed {
		zap.L().Warn("Bridge simulator closed before settlement was scheduled", zap.String("transfer_id", transfer.Id))
		return &transfer, nil
	}
	s.wg.Add(1)
	s.pending[transfer.Id] = s.schedule(s.settleDelay, func() {
		defer s.wg.Done()
		s.settle(transfer.Id)
	})

	return &transfer, nil
}

func (s *Simulator) settle(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	transfer, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		zap.L().Error("Unable to load transfer for settlement", zap.String("transfer_id", id), zap.Error(err))
		return
	}
	if transfer.Terminal() {
		return
	}

	if s.random() < s.successRate {
		transfer.Status = models.TransferStatusCompleted
		transfer.TransactionHash = fabricateHash()
	} else {
		transfer.Status = models.TransferStatusFailed
		transfer.Error = failureReasons[int(s.random()*float64(len(failureReasons)))%len(failureReasons)]
	}
	transfer.UpdatedAt = s.now()

	if err := s.save(ctx, *transfer); err != nil {
		zap.L().Error("Unable to save settled transfer", zap.String("transfer_id", id), zap.Error(err))
		return
	}

	zap.L().Info("Cross-chain transfer settled",
		zap.String("transfer_id", id),
		zap.String("status", string(transfer.Status)),
		zap.String("error", transfer.Error))

	if s.onSettled != nil {
		s.onSettled(*transfer)
	}
}

func (s *Simulator) save(ctx context.Context, transfer models.BridgeTransfer) error {
	if err := s.store.SaveTransfer(ctx, transfer); err != nil {
		return fmt.Errorf("unable to save transfer: %w", err)
	}
	if s.mirror != nil {
		if err := s.mirror.PutTransfer(ctx, transfer); err != nil {
			zap.L().Warn("Failed to mirror transfer", zap.String("transfer_id", transfer.Id), zap.Error(err))
		}
	}
	return nil
}

func (s *Simulator) Get(ctx context.Context, id string) (*models.BridgeTransfer, error) {
	return s.store.GetTransfer(ctx, id)
}

func (s *Simulator) List(ctx context.Context, userId *int64) ([]models.BridgeTransfer, error) {
	return s.store.ListTransfers(ctx, userId)
}

// PendingCount reports how many settlements are scheduled.
func (s *Simulator) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels scheduled settlements and waits for running ones. Cancelled
// transfers stay pending in storage.
func (s *Simulator) Close() {
	s.mu.Lock()
	s.closed = true
	for id, timer := range s.pending {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	zap.L().Info("Bridge simulator stopped")
}

// fabricateHash returns a 0x-prefixed 32 byte hex string.
func fabricateHash() string {
	a := strings.ReplaceAll(uuid.New().String(), "-", "")
	b := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "0x" + a + b
}
