package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"crypto-signals/config"
	"crypto-signals/internal/contract"
	"crypto-signals/internal/dto"
	"crypto-signals/internal/exchange"
	"crypto-signals/internal/model"
	"crypto-signals/internal/repository"
	"crypto-signals/pkg/logger"
	"crypto-signals/pkg/utils"
)

var (
	ErrSignalNotActive      = errors.New("signal is no longer active")
	ErrSignalExpired        = errors.New("signal has expired")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrPositionNotOpen      = errors.New("position is not open")
)

// ConflictError reports a duplicate in-flight execution for the same
// (user, signal) pair. Nothing was submitted on the caller's behalf.
type ConflictError struct {
	UserID   uint
	SignalID uint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("execution already in flight for user %d on signal %d", e.UserID, e.SignalID)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

type ExecutionService interface {
	ExecuteSignal(ctx context.Context, userID uint, req dto.ExecuteSignalRequest) (*model.Position, error)
	ClosePosition(ctx context.Context, userID uint, positionID uint, exitPrice float64) (*model.Position, error)
	GetPositions(ctx context.Context, userID uint) ([]model.Position, error)
	CheckOpenPositions(ctx context.Context) error
}

type executionService struct {
	cfg          *config.Config
	log          *logger.Logger
	signalRepo   repository.SignalRepository
	positionRepo repository.PositionRepository
	binanceRepo  repository.BinanceRepository
	adapter      exchange.Adapter
	gate         contract.SubscriptionGate
	credentials  contract.CredentialStore

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewExecutionService(
	cfg *config.Config,
	log *logger.Logger,
	signalRepo repository.SignalRepository,
	positionRepo repository.PositionRepository,
	binanceRepo repository.BinanceRepository,
	adapter exchange.Adapter,
	gate contract.SubscriptionGate,
	credentials contract.CredentialStore,
) *executionService {
	return &executionService{
		cfg:          cfg,
		log:          log,
		signalRepo:   signalRepo,
		positionRepo: positionRepo,
		binanceRepo:  binanceRepo,
		adapter:      adapter,
		gate:         gate,
		credentials:  credentials,
		inFlight:     make(map[string]struct{}),
	}
}

func claimKey(userID, signalID uint) string {
	return fmt.Sprintf("%d:%d", userID, signalID)
}

// claim takes the exclusive in-flight slot for a (user, signal) pair. A
// second caller gets a ConflictError instead of a silent dedupe.
func (s *executionService) claim(userID, signalID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := claimKey(userID, signalID)
	if _, exists := s.inFlight[key]; exists {
		return &ConflictError{UserID: userID, SignalID: signalID}
	}
	s.inFlight[key] = struct{}{}
	return nil
}

func (s *executionService) release(userID, signalID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, claimKey(userID, signalID))
}

// ExecuteSignal walks an order through requested -> submitted and blocks
// until a terminal submit outcome (filled, rejected or failed) is known.
func (s *executionService) ExecuteSignal(ctx context.Context, userID uint, req dto.ExecuteSignalRequest) (*model.Position, error) {
	tier, err := s.gate.GetActiveSubscriptionTier(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subscription: %w", err)
	}
	if tier != contract.TierPro {
		return nil, ErrSubscriptionRequired
	}

	if err := s.claim(userID, req.SignalID); err != nil {
		return nil, err
	}
	defer s.release(userID, req.SignalID)

	signal, err := s.signalRepo.GetByID(ctx, req.SignalID)
	if err != nil {
		return nil, err
	}
	if !signal.IsActive {
		return nil, ErrSignalNotActive
	}
	if signal.IsExpired(time.Now().UTC()) {
		return nil, ErrSignalExpired
	}

	cred, err := s.credentials.GetExchangeCredential(ctx, userID, req.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve exchange credential: %w", err)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = dto.OrderTypeMarket
	}

	position := &model.Position{
		UserID:      userID,
		SignalID:    signal.ID,
		Symbol:      signal.Symbol,
		Direction:   signal.Direction,
		Side:        sideForDirection(signal.Direction),
		OrderType:   orderType,
		Status:      dto.StatusRequested,
		TargetPrice: signal.TargetPrice,
		StopLoss:    signal.StopLoss,
		SizePercent: req.SizePercent,
	}
	if err := s.positionRepo.Create(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}

	// Balance is queried fresh on every execution, never cached. Nothing has
	// been submitted yet, so a fetch failure is a rejection with a known
	// outcome, not an unconfirmed one.
	balances, err := s.adapter.FetchBalance(ctx, cred)
	if err != nil {
		return s.rejectPosition(ctx, position, fmt.Sprintf("failed to fetch balance: %v", err))
	}
	quantity := computeQuantity(balances, signal, req.SizePercent)
	if quantity <= 0 {
		return s.rejectPosition(ctx, position, "insufficient balance for requested size")
	}
	position.Quantity = quantity

	now := time.Now().UTC()
	position.Status = dto.StatusSubmitted
	position.SubmittedAt = &now
	if err := s.positionRepo.Update(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to mark position submitted: %w", err)
	}

	ref, err := s.submitWithRetry(ctx, cred, exchange.OrderRequest{
		Symbol:    signal.Symbol,
		Side:      position.Side,
		OrderType: orderType,
		Quantity:  quantity,
		Price:     signal.EntryPrice,
	})
	if err != nil {
		if exchange.IsClient(err) {
			return s.rejectPosition(ctx, position, err.Error())
		}
		// Transient exhaustion or timeout: the true outcome at the exchange
		// is unknown, so this is failed, not rejected.
		return s.failPosition(ctx, position, err)
	}

	filledAt := time.Now().UTC()
	position.Status = dto.StatusFilled
	position.EntryPrice = ref.FilledPrice
	position.ExchangeRef = ref.OrderID
	position.FilledAt = &filledAt
	if err := s.positionRepo.Update(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to mark position filled: %w", err)
	}

	s.log.InfoContext(ctx, "Order filled",
		logger.IntField("position_id", int(position.ID)),
		logger.StringField("symbol", position.Symbol),
		logger.Float64Field("entry_price", position.EntryPrice),
		logger.Float64Field("quantity", position.Quantity),
	)
	return position, nil
}

// submitWithRetry retries transient failures with exponential backoff up to
// the configured attempt budget. Client errors abort immediately.
func (s *executionService) submitWithRetry(ctx context.Context, cred *contract.ExchangeCredential, req exchange.OrderRequest) (*exchange.OrderRef, error) {
	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.Execution.SubmitTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.Execution.InitialInterval

	var ref *exchange.OrderRef
	operation := func() error {
		var err error
		ref, err = s.adapter.PlaceOrder(submitCtx, cred, req)
		if err == nil {
			return nil
		}
		if exchange.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, s.cfg.Execution.MaxRetries), submitCtx))
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *executionService) rejectPosition(ctx context.Context, position *model.Position, reason string) (*model.Position, error) {
	position.Status = dto.StatusRejected
	position.FailureReason = reason
	if err := s.positionRepo.Update(ctx, position); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist rejection", logger.ErrorField(err))
	}
	return position, nil
}

func (s *executionService) failPosition(ctx context.Context, position *model.Position, cause error) (*model.Position, error) {
	position.Status = dto.StatusFailed
	position.FailureReason = cause.Error()
	if err := s.positionRepo.Update(ctx, position); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist failure", logger.ErrorField(err))
	}
	s.log.ErrorContextWithAlert(ctx, "Order submission failed, outcome must be reconciled",
		logger.ErrorField(cause),
		logger.IntField("position_id", int(position.ID)),
		logger.StringField("symbol", position.Symbol),
	)
	return position, nil
}

// ClosePosition settles a filled position at the given exit price and
// records realized P&L. Closed positions are immutable.
func (s *executionService) ClosePosition(ctx context.Context, userID uint, positionID uint, exitPrice float64) (*model.Position, error) {
	position, err := s.positionRepo.GetByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if position.UserID != userID {
		return nil, repository.ErrPositionNotFound
	}
	if !position.IsOpen() {
		return nil, ErrPositionNotOpen
	}

	pnl := realizedPnL(position, exitPrice)
	now := time.Now().UTC()
	position.Status = dto.StatusClosed
	position.ExitPrice = utils.ToPointer(exitPrice)
	position.RealizedPnL = utils.ToPointer(pnl)
	position.ClosedAt = &now
	if err := s.positionRepo.Update(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to close position: %w", err)
	}

	s.log.InfoContext(ctx, "Position closed",
		logger.IntField("position_id", int(position.ID)),
		logger.Float64Field("exit_price", exitPrice),
		logger.Float64Field("realized_pnl", pnl),
	)
	return position, nil
}

func (s *executionService) GetPositions(ctx context.Context, userID uint) ([]model.Position, error) {
	return s.positionRepo.Get(ctx, repository.GetPositionsParam{UserID: &userID})
}

// CheckOpenPositions closes filled positions whose market price has crossed
// their target or stop.
func (s *executionService) CheckOpenPositions(ctx context.Context) error {
	positions, err := s.positionRepo.Get(ctx, repository.GetPositionsParam{
		Statuses: []string{dto.StatusFilled},
	})
	if err != nil {
		return fmt.Errorf("failed to list open positions: %w", err)
	}

	for i := range positions {
		position := &positions[i]
		if !utils.ShouldContinue(ctx, s.log) {
			return nil
		}

		price, err := s.binanceRepo.GetLastPrice(ctx, position.Symbol)
		if err != nil {
			s.log.WarnContext(ctx, "Failed to fetch price for open position",
				logger.ErrorField(err),
				logger.StringField("symbol", position.Symbol),
			)
			continue
		}

		if !shouldAutoClose(position, price.Price) {
			continue
		}

		if _, err := s.ClosePosition(ctx, position.UserID, position.ID, price.Price); err != nil {
			s.log.ErrorContext(ctx, "Failed to auto-close position",
				logger.ErrorField(err),
				logger.IntField("position_id", int(position.ID)),
			)
		}
	}
	return nil
}

func sideForDirection(direction string) string {
	if direction == dto.DirectionLong {
		return dto.SideBuy
	}
	return dto.SideSell
}

// computeQuantity sizes the order as a percentage of the free quote balance
// at the signal's entry price.
func computeQuantity(balances []exchange.Balance, signal *model.Signal, sizePercent float64) float64 {
	quote := quoteAssetOf(signal.Symbol)
	var free float64
	for _, b := range balances {
		if b.Asset == quote {
			free = b.Free
			break
		}
	}
	if free <= 0 || signal.EntryPrice <= 0 {
		return 0
	}
	return free * (sizePercent / 100.0) / signal.EntryPrice
}

func quoteAssetOf(symbol string) string {
	for i := len(symbol) - 1; i >= 0; i-- {
		if symbol[i] == '/' {
			return symbol[i+1:]
		}
	}
	return "USDT"
}

func realizedPnL(position *model.Position, exitPrice float64) float64 {
	if position.Direction == dto.DirectionLong {
		return (exitPrice - position.EntryPrice) * position.Quantity
	}
	return (position.EntryPrice - exitPrice) * position.Quantity
}

func shouldAutoClose(position *model.Position, price float64) bool {
	if position.Direction == dto.DirectionLong {
		return price >= position.TargetPrice || price <= position.StopLoss
	}
	return price <= position.TargetPrice || price >= position.StopLoss
}
