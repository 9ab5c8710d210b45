package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"crypto-signals/config"
	"crypto-signals/internal/dto"
	"crypto-signals/internal/ensemble"
	"crypto-signals/internal/indicator"
	"crypto-signals/internal/model"
	"crypto-signals/internal/repository"
	"crypto-signals/pkg/bus"
	"crypto-signals/pkg/cache"
	"crypto-signals/pkg/logger"
	"crypto-signals/pkg/utils"
)

const refreshCooldownKeyPrefix = "pipeline:refresh:"

type scorer interface {
	Score(fv *indicator.FeatureVector) *ensemble.Outcome
}

type riskCalculator interface {
	Compute(direction string, entry, atr, confidence float64) *ensemble.Levels
}

type PipelineService interface {
	RunTick(ctx context.Context) error
	EvaluateSymbol(ctx context.Context, symbol string) (*model.Signal, error)
	RequestRefresh(ctx context.Context, symbols []string) (accepted []string, skipped []string)
	ExpireStaleSignals(ctx context.Context) error
	PublishPriceUpdates(ctx context.Context) error
}

type pipelineService struct {
	cfg           *config.Config
	log           *logger.Logger
	signalRepo    repository.SignalRepository
	binanceRepo   repository.BinanceRepository
	engine        *indicator.Engine
	scorer        scorer
	risk          riskCalculator
	notifications bus.Bus
	inmemoryCache cache.Cache
	semaphore     chan struct{}
}

func NewPipelineService(
	cfg *config.Config,
	log *logger.Logger,
	signalRepo repository.SignalRepository,
	binanceRepo repository.BinanceRepository,
	notifications bus.Bus,
	inmemoryCache cache.Cache,
) *pipelineService {
	return &pipelineService{
		cfg:           cfg,
		log:           log,
		signalRepo:    signalRepo,
		binanceRepo:   binanceRepo,
		engine:        indicator.NewEngine(cfg.Pipeline.MinCandles),
		scorer:        ensemble.NewScorer(cfg.Ensemble),
		risk:          ensemble.NewRiskCalculator(cfg.Risk),
		notifications: notifications,
		inmemoryCache: inmemoryCache,
		semaphore:     make(chan struct{}, cfg.Pipeline.MaxConcurrency),
	}
}

// RunTick evaluates every configured symbol. Evaluations run concurrently
// under the semaphore and one symbol's failure never aborts the others.
func (s *pipelineService) RunTick(ctx context.Context) error {
	s.log.InfoContext(ctx, "Pipeline tick started",
		logger.IntField("symbol_count", len(s.cfg.Pipeline.Symbols)),
		logger.IntField("max_concurrency", s.cfg.Pipeline.MaxConcurrency),
	)

	for _, symbol := range s.cfg.Pipeline.Symbols {
		if !utils.ShouldContinue(ctx, s.log) {
			return nil
		}

		symbol := symbol
		s.semaphore <- struct{}{}
		utils.GoSafe(func() {
			defer func() {
				<-s.semaphore
			}()

			evalCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if _, err := s.EvaluateSymbol(evalCtx, symbol); err != nil {
				s.log.ErrorContext(evalCtx, "Symbol evaluation failed",
					logger.ErrorField(err),
					logger.StringField("symbol", symbol),
				)
			}
		})
	}

	return nil
}

// EvaluateSymbol runs one pass of the scoring pipeline for a symbol. A nil
// signal with nil error means the gates rejected the setup, which is the
// expected outcome most ticks.
func (s *pipelineService) EvaluateSymbol(ctx context.Context, symbol string) (*model.Signal, error) {
	candles, err := s.binanceRepo.GetOHLCV(ctx, symbol, s.cfg.Pipeline.Timeframe, s.cfg.Pipeline.CandleLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}

	fv, err := s.engine.Compute(candles)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			s.log.DebugContext(ctx, "Not enough history yet, skipping",
				logger.StringField("symbol", symbol),
				logger.IntField("candles", len(candles)),
			)
			return nil, nil
		}
		return nil, err
	}

	outcome := s.scorer.Score(fv)
	if outcome == nil {
		s.log.DebugContext(ctx, "No signal from ensemble", logger.StringField("symbol", symbol))
		return nil, nil
	}

	levels := s.risk.Compute(outcome.Direction, fv.LastClose, fv.ATR, outcome.Confidence)
	if levels == nil {
		s.log.DebugContext(ctx, "Signal rejected by risk gate",
			logger.StringField("symbol", symbol),
			logger.StringField("direction", outcome.Direction),
			logger.Float64Field("confidence", outcome.Confidence),
		)
		return nil, nil
	}

	rationale := ensemble.BuildRationale(outcome, fv)

	modelScoresJSON, err := json.Marshal(outcome.ModelScores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model scores: %w", err)
	}
	rationaleJSON, err := json.Marshal(rationale)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rationale: %w", err)
	}

	now := time.Now().UTC()
	signal := &model.Signal{
		Symbol:          symbol,
		Timeframe:       s.cfg.Pipeline.Timeframe,
		Direction:       outcome.Direction,
		EntryPrice:      levels.Entry,
		TargetPrice:     levels.Target,
		StopLoss:        levels.Stop,
		Confidence:      outcome.Confidence,
		RiskRewardRatio: levels.RiskRewardRatio,
		ModelScores:     modelScoresJSON,
		Rationale:       rationaleJSON,
		IsActive:        true,
		ExpiresAt:       now.Add(s.cfg.Pipeline.SignalTTL),
	}

	if err := s.signalRepo.Create(ctx, signal); err != nil {
		return nil, fmt.Errorf("failed to store signal for %s: %w", symbol, err)
	}

	s.log.InfoContext(ctx, "Signal accepted",
		logger.StringField("symbol", symbol),
		logger.StringField("direction", signal.Direction),
		logger.Float64Field("confidence", signal.Confidence),
		logger.Float64Field("risk_reward", signal.RiskRewardRatio),
	)

	s.publishSignal(ctx, signal, outcome.ModelScores, rationale)
	return signal, nil
}

// publishSignal pushes the accepted signal onto the notification bus.
// Delivery is best-effort; a publish failure never fails the evaluation.
func (s *pipelineService) publishSignal(ctx context.Context, signal *model.Signal, modelScores map[string]float64, rationale []string) {
	payload := dto.SignalPayload{
		ID:              signal.ID,
		Symbol:          signal.Symbol,
		Timeframe:       signal.Timeframe,
		Direction:       signal.Direction,
		EntryPrice:      signal.EntryPrice,
		TargetPrice:     signal.TargetPrice,
		StopLoss:        signal.StopLoss,
		Confidence:      signal.Confidence,
		RiskRewardRatio: signal.RiskRewardRatio,
		ModelScores:     modelScores,
		Rationale:       rationale,
		CreatedAt:       signal.CreatedAt,
		ExpiresAt:       signal.ExpiresAt,
		IsActive:        signal.IsActive,
	}

	envelope := dto.NewEnvelope(dto.MessageTypeNewSignal, payload)
	err := s.notifications.Publish(ctx, bus.Message{
		Symbol:    signal.Symbol,
		Payload:   envelope.Encode(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to publish signal notification",
			logger.ErrorField(err),
			logger.StringField("symbol", signal.Symbol),
		)
	}
}

// RequestRefresh enqueues asynchronous evaluations for the given symbols.
// Symbols still inside the cooldown window are skipped, which makes repeated
// refresh calls idempotent.
func (s *pipelineService) RequestRefresh(ctx context.Context, symbols []string) (accepted []string, skipped []string) {
	for _, symbol := range symbols {
		if !utils.ContainsString(s.cfg.Pipeline.Symbols, symbol) {
			skipped = append(skipped, symbol)
			continue
		}

		cooldownKey := refreshCooldownKeyPrefix + symbol
		if _, onCooldown := s.inmemoryCache.Get(cooldownKey); onCooldown {
			skipped = append(skipped, symbol)
			continue
		}
		s.inmemoryCache.Set(cooldownKey, time.Now(), s.cfg.Pipeline.RefreshCooldown)
		accepted = append(accepted, symbol)

		symbol := symbol
		utils.GoSafe(func() {
			evalCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if _, err := s.EvaluateSymbol(evalCtx, symbol); err != nil {
				s.log.ErrorContext(evalCtx, "Refresh evaluation failed",
					logger.ErrorField(err),
					logger.StringField("symbol", symbol),
				)
			}
		})
	}

	return accepted, skipped
}

// ExpireStaleSignals deactivates signals past their TTL.
func (s *pipelineService) ExpireStaleSignals(ctx context.Context) error {
	expired, err := s.signalRepo.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to expire signals: %w", err)
	}
	for _, signal := range expired {
		s.log.InfoContext(ctx, "Signal expired",
			logger.IntField("signal_id", int(signal.ID)),
			logger.StringField("symbol", signal.Symbol),
		)
	}
	return nil
}

// PublishPriceUpdates pushes the current price of every configured symbol to
// live subscribers. Fetches run concurrently and a failed symbol is logged
// and skipped rather than failing the whole sweep.
func (s *pipelineService) PublishPriceUpdates(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Pipeline.MaxConcurrency)

	for _, symbol := range s.cfg.Pipeline.Symbols {
		symbol := symbol
		group.Go(func() error {
			price, err := s.binanceRepo.GetLastPrice(groupCtx, symbol)
			if err != nil {
				s.log.WarnContext(groupCtx, "Failed to fetch price",
					logger.ErrorField(err),
					logger.StringField("symbol", symbol),
				)
				return nil
			}

			envelope := dto.NewEnvelope(dto.MessageTypePriceUpdate, dto.PriceUpdatePayload{
				Symbol: symbol,
				Price:  price.Price,
			})
			err = s.notifications.Publish(groupCtx, bus.Message{
				Symbol:    symbol,
				Payload:   envelope.Encode(),
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				s.log.WarnContext(groupCtx, "Failed to publish price update",
					logger.ErrorField(err),
					logger.StringField("symbol", symbol),
				)
			}
			return nil
		})
	}

	return group.Wait()
}
