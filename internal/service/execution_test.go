package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signals/config"
	"crypto-signals/internal/contract"
	"crypto-signals/internal/dto"
	"crypto-signals/internal/exchange"
	"crypto-signals/internal/model"
	"crypto-signals/internal/repository"
	"crypto-signals/pkg/logger"
	"crypto-signals/pkg/utils"
)

type stubSignalRepo struct {
	signals map[uint]*model.Signal
}

func (r *stubSignalRepo) Create(ctx context.Context, signal *model.Signal) error { return nil }
func (r *stubSignalRepo) GetLatest(ctx context.Context, symbol string) ([]model.Signal, error) {
	return nil, nil
}
func (r *stubSignalRepo) GetActiveBySymbol(ctx context.Context, symbol string) (*model.Signal, error) {
	return nil, repository.ErrSignalNotFound
}
func (r *stubSignalRepo) Deactivate(ctx context.Context, id uint, opts ...utils.DBOption) error {
	return nil
}
func (r *stubSignalRepo) ExpireStale(ctx context.Context, now time.Time) ([]model.Signal, error) {
	return nil, nil
}
func (r *stubSignalRepo) GetByID(ctx context.Context, id uint) (*model.Signal, error) {
	signal, ok := r.signals[id]
	if !ok {
		return nil, repository.ErrSignalNotFound
	}
	copied := *signal
	return &copied, nil
}

type stubPositionRepo struct {
	mu        sync.Mutex
	nextID    uint
	positions map[uint]*model.Position
}

func newStubPositionRepo() *stubPositionRepo {
	return &stubPositionRepo{positions: make(map[uint]*model.Position)}
}

func (r *stubPositionRepo) Create(ctx context.Context, position *model.Position, opts ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	position.ID = r.nextID
	copied := *position
	r.positions[position.ID] = &copied
	return nil
}

func (r *stubPositionRepo) Update(ctx context.Context, position *model.Position, opts ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *position
	r.positions[position.ID] = &copied
	return nil
}

func (r *stubPositionRepo) GetByID(ctx context.Context, id uint) (*model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	position, ok := r.positions[id]
	if !ok {
		return nil, repository.ErrPositionNotFound
	}
	copied := *position
	return &copied, nil
}

func (r *stubPositionRepo) Get(ctx context.Context, param repository.GetPositionsParam) ([]model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Position
	for _, p := range r.positions {
		if param.UserID != nil && p.UserID != *param.UserID {
			continue
		}
		if len(param.Statuses) > 0 && !utils.ContainsString(param.Statuses, p.Status) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

type stubBinanceRepo struct {
	lastPrice float64
	candles   []dto.OHLCV
	err       error
}

func (r *stubBinanceRepo) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]dto.BinanceKlines, error) {
	return nil, r.err
}

func (r *stubBinanceRepo) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]dto.OHLCV, error) {
	return r.candles, r.err
}

func (r *stubBinanceRepo) GetLastPrice(ctx context.Context, symbol string) (*dto.BinancePrice, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &dto.BinancePrice{Symbol: symbol, Price: r.lastPrice}, nil
}

type stubAdapter struct {
	mu          sync.Mutex
	placeErr    error
	balanceErr  error
	placeCalls  int
	fillPrice   float64
	balance     float64
	blockPlace  chan struct{}
	placeActive chan struct{}
}

func (a *stubAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]dto.OHLCV, error) {
	return nil, nil
}

func (a *stubAdapter) FetchBalance(ctx context.Context, cred *contract.ExchangeCredential) ([]exchange.Balance, error) {
	if a.balanceErr != nil {
		return nil, a.balanceErr
	}
	return []exchange.Balance{{Asset: "USDT", Free: a.balance}}, nil
}

func (a *stubAdapter) PlaceOrder(ctx context.Context, cred *contract.ExchangeCredential, req exchange.OrderRequest) (*exchange.OrderRef, error) {
	a.mu.Lock()
	a.placeCalls++
	a.mu.Unlock()

	if a.placeActive != nil {
		a.placeActive <- struct{}{}
	}
	if a.blockPlace != nil {
		<-a.blockPlace
	}
	if a.placeErr != nil {
		return nil, a.placeErr
	}
	return &exchange.OrderRef{OrderID: "order-1", FilledPrice: a.fillPrice, FilledQty: req.Quantity}, nil
}

func (a *stubAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.placeCalls
}

func activeSignal(id uint) *model.Signal {
	return &model.Signal{
		ID:          id,
		Symbol:      "BTC/USDT",
		Direction:   dto.DirectionLong,
		EntryPrice:  45000,
		TargetPrice: 47000,
		StopLoss:    44000,
		IsActive:    true,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func executionConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Execution.MaxRetries = 2
	cfg.Execution.InitialInterval = time.Millisecond
	cfg.Execution.SubmitTimeout = 2 * time.Second
	return cfg
}

func newTestExecutionService(signals *stubSignalRepo, positions *stubPositionRepo, binance *stubBinanceRepo, adapter *stubAdapter) *executionService {
	return NewExecutionService(
		executionConfig(),
		logger.NewNop(),
		signals,
		positions,
		binance,
		adapter,
		contract.NewStaticGate(contract.TierPro),
		contract.NewStaticCredentialStore(contract.ExchangeCredential{Exchange: "binance"}),
	)
}

func TestExecuteSignal_Fills(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	positions := newStubPositionRepo()
	adapter := &stubAdapter{balance: 10000, fillPrice: 45010}
	svc := newTestExecutionService(signals, positions, &stubBinanceRepo{}, adapter)

	position, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{
		SignalID:     1,
		ConnectionID: "primary",
		SizePercent:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, dto.StatusFilled, position.Status)
	assert.Equal(t, 45010.0, position.EntryPrice)
	assert.Equal(t, "order-1", position.ExchangeRef)
	assert.Equal(t, dto.SideBuy, position.Side)
	// 10% of 10000 USDT at the signal entry price.
	assert.InDelta(t, 1000.0/45000.0, position.Quantity, 1e-9)
	assert.NotNil(t, position.SubmittedAt)
	assert.NotNil(t, position.FilledAt)
}

func TestExecuteSignal_ConflictOnSameSignal(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	positions := newStubPositionRepo()
	adapter := &stubAdapter{
		balance:     10000,
		fillPrice:   45000,
		blockPlace:  make(chan struct{}),
		placeActive: make(chan struct{}, 1),
	}
	svc := newTestExecutionService(signals, positions, &stubBinanceRepo{}, adapter)

	done := make(chan error, 1)
	go func() {
		_, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
		done <- err
	}()

	// Wait until the first submission is in flight at the adapter.
	<-adapter.placeActive

	_, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	close(adapter.blockPlace)
	require.NoError(t, <-done)

	// A different user on the same signal is not a conflict.
	_, err = svc.ExecuteSignal(context.Background(), 8, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	assert.NoError(t, err)
}

func TestExecuteSignal_ClientErrorRejectsWithoutRetry(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	positions := newStubPositionRepo()
	adapter := &stubAdapter{
		balance:  10000,
		placeErr: exchange.NewClientError(errors.New("insufficient funds")),
	}
	svc := newTestExecutionService(signals, positions, &stubBinanceRepo{}, adapter)

	position, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	require.NoError(t, err)
	assert.Equal(t, dto.StatusRejected, position.Status)
	assert.Contains(t, position.FailureReason, "insufficient funds")
	assert.Equal(t, 1, adapter.calls())
}

func TestExecuteSignal_BalanceFetchFailureRejectsBeforeSubmit(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	positions := newStubPositionRepo()
	adapter := &stubAdapter{
		balanceErr: exchange.NewTransientError(errors.New("exchange unreachable")),
	}
	svc := newTestExecutionService(signals, positions, &stubBinanceRepo{}, adapter)

	position, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	require.NoError(t, err)

	// Nothing reached the exchange, so the outcome is a known rejection
	// rather than an unconfirmed failure.
	assert.Equal(t, dto.StatusRejected, position.Status)
	assert.Contains(t, position.FailureReason, "failed to fetch balance")
	assert.Equal(t, 0, adapter.calls())
}

type recordingCredentialStore struct {
	connectionID string
}

func (s *recordingCredentialStore) GetExchangeCredential(ctx context.Context, userID uint, connectionID string) (*contract.ExchangeCredential, error) {
	s.connectionID = connectionID
	return &contract.ExchangeCredential{UserID: userID, ConnectionID: connectionID, Exchange: "binance"}, nil
}

func TestExecuteSignal_PassesConnectionIDToCredentialStore(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	store := &recordingCredentialStore{}
	svc := NewExecutionService(
		executionConfig(),
		logger.NewNop(),
		signals,
		newStubPositionRepo(),
		&stubBinanceRepo{},
		&stubAdapter{balance: 10000, fillPrice: 45000},
		contract.NewStaticGate(contract.TierPro),
		store,
	)

	_, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "secondary", SizePercent: 10})
	require.NoError(t, err)
	assert.Equal(t, "secondary", store.connectionID)
}

func TestExecuteSignal_TransientErrorRetriesThenFails(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	positions := newStubPositionRepo()
	adapter := &stubAdapter{
		balance:  10000,
		placeErr: exchange.NewTransientError(errors.New("connection reset")),
	}
	svc := newTestExecutionService(signals, positions, &stubBinanceRepo{}, adapter)

	position, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	require.NoError(t, err)
	assert.Equal(t, dto.StatusFailed, position.Status)
	// Initial attempt plus the configured retry budget.
	assert.Equal(t, 3, adapter.calls())
}

func TestExecuteSignal_InactiveAndExpiredSignals(t *testing.T) {
	inactive := activeSignal(1)
	inactive.IsActive = false
	expired := activeSignal(2)
	expired.ExpiresAt = time.Now().Add(-time.Hour)

	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: inactive, 2: expired}}
	svc := newTestExecutionService(signals, newStubPositionRepo(), &stubBinanceRepo{}, &stubAdapter{balance: 10000})

	_, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	assert.ErrorIs(t, err, ErrSignalNotActive)

	_, err = svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 2, ConnectionID: "primary", SizePercent: 10})
	assert.ErrorIs(t, err, ErrSignalExpired)

	_, err = svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 99, ConnectionID: "primary", SizePercent: 10})
	assert.ErrorIs(t, err, repository.ErrSignalNotFound)
}

func TestClosePosition(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	positions := newStubPositionRepo()
	adapter := &stubAdapter{balance: 10000, fillPrice: 45000}
	svc := newTestExecutionService(signals, positions, &stubBinanceRepo{}, adapter)

	position, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	require.NoError(t, err)
	require.Equal(t, dto.StatusFilled, position.Status)

	// Wrong user cannot touch the position.
	_, err = svc.ClosePosition(context.Background(), 8, position.ID, 46000)
	assert.ErrorIs(t, err, repository.ErrPositionNotFound)

	closed, err := svc.ClosePosition(context.Background(), 7, position.ID, 46000)
	require.NoError(t, err)
	assert.Equal(t, dto.StatusClosed, closed.Status)
	require.NotNil(t, closed.RealizedPnL)
	assert.InDelta(t, (46000.0-45000.0)*position.Quantity, *closed.RealizedPnL, 1e-9)
	require.NotNil(t, closed.ExitPrice)
	assert.Equal(t, 46000.0, *closed.ExitPrice)

	// Closed positions are immutable.
	_, err = svc.ClosePosition(context.Background(), 7, position.ID, 47000)
	assert.ErrorIs(t, err, ErrPositionNotOpen)
}

func TestCheckOpenPositions_AutoClosesOnTarget(t *testing.T) {
	signals := &stubSignalRepo{signals: map[uint]*model.Signal{1: activeSignal(1)}}
	positions := newStubPositionRepo()
	adapter := &stubAdapter{balance: 10000, fillPrice: 45000}
	binance := &stubBinanceRepo{lastPrice: 47500}
	svc := newTestExecutionService(signals, positions, binance, adapter)

	position, err := svc.ExecuteSignal(context.Background(), 7, dto.ExecuteSignalRequest{SignalID: 1, ConnectionID: "primary", SizePercent: 10})
	require.NoError(t, err)
	require.Equal(t, dto.StatusFilled, position.Status)

	require.NoError(t, svc.CheckOpenPositions(context.Background()))

	closed, err := positions.GetByID(context.Background(), position.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.StatusClosed, closed.Status)
	require.NotNil(t, closed.RealizedPnL)
	assert.Greater(t, *closed.RealizedPnL, 0.0)
}
