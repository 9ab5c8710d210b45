package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signals/config"
	"crypto-signals/internal/dto"
	"crypto-signals/internal/ensemble"
	"crypto-signals/internal/indicator"
	"crypto-signals/internal/model"
	"crypto-signals/pkg/bus"
	"crypto-signals/pkg/logger"
)

type recordingSignalRepo struct {
	stubSignalRepo
	mu      sync.Mutex
	created []*model.Signal
	expired []model.Signal
}

func (r *recordingSignalRepo) Create(ctx context.Context, signal *model.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	signal.ID = uint(len(r.created) + 1)
	signal.CreatedAt = time.Now().UTC()
	r.created = append(r.created, signal)
	return nil
}

func (r *recordingSignalRepo) ExpireStale(ctx context.Context, now time.Time) ([]model.Signal, error) {
	return r.expired, nil
}

func (r *recordingSignalRepo) createdCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

type stubScorer struct {
	outcome *ensemble.Outcome
}

func (s *stubScorer) Score(_ *indicator.FeatureVector) *ensemble.Outcome {
	return s.outcome
}

type stubRisk struct {
	levels *ensemble.Levels
}

func (s *stubRisk) Compute(direction string, entry, atr, confidence float64) *ensemble.Levels {
	return s.levels
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]interface{})}
}

func (c *fakeCache) Set(key string, value interface{}, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *fakeCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *fakeCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *fakeCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]interface{})
}

func pipelineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Pipeline.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	cfg.Pipeline.Timeframe = "1h"
	cfg.Pipeline.CandleLimit = 100
	cfg.Pipeline.MinCandles = 50
	cfg.Pipeline.MaxConcurrency = 2
	cfg.Pipeline.SignalTTL = 24 * time.Hour
	cfg.Pipeline.RefreshCooldown = 5 * time.Minute
	cfg.Ensemble.AgreementGap = 0.15
	cfg.Ensemble.MinConfidence = 0.65
	cfg.Risk.MinRiskReward = 1.2
	return cfg
}

func trendCandles(n int) []dto.OHLCV {
	candles := make([]dto.OHLCV, 0, n)
	for i := 0; i < n; i++ {
		price := 45000.0 + float64(i)*10
		candles = append(candles, dto.OHLCV{
			Timestamp: int64(i+1) * 3600_000,
			Open:      price - 5,
			High:      price + 20,
			Low:       price - 20,
			Close:     price,
			Volume:    1000,
		})
	}
	return candles
}

func TestEvaluateSymbol_AcceptedSignalIsStoredAndPublished(t *testing.T) {
	repo := &recordingSignalRepo{}
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := notifications.Subscribe(ctx)
	require.NoError(t, err)

	svc := NewPipelineService(pipelineConfig(), logger.NewNop(), repo, &stubBinanceRepo{candles: trendCandles(100)}, notifications, newFakeCache())
	svc.scorer = &stubScorer{outcome: &ensemble.Outcome{
		Direction:   dto.DirectionLong,
		Confidence:  78.5,
		LongScore:   0.785,
		ShortScore:  0.40,
		ModelScores: map[string]float64{dto.ModelTechnical: 0.9},
		Votes:       map[string]ensemble.ModelVote{dto.ModelTechnical: {Long: 0.9, Reason: "Technical indicators: confluence"}},
	}}
	svc.risk = &stubRisk{levels: &ensemble.Levels{
		Entry:           45990,
		Target:          48000,
		Stop:            45000,
		RiskRewardRatio: 2.03,
	}}

	signal, err := svc.EvaluateSymbol(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, signal)

	assert.Equal(t, "BTC/USDT", signal.Symbol)
	assert.Equal(t, dto.DirectionLong, signal.Direction)
	assert.Equal(t, 78.5, signal.Confidence)
	assert.True(t, signal.IsActive)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), signal.ExpiresAt, time.Minute)
	assert.Equal(t, 1, repo.createdCount())

	select {
	case msg := <-messages:
		assert.Equal(t, "BTC/USDT", msg.Symbol)
		var envelope dto.Envelope
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		assert.Equal(t, dto.MessageTypeNewSignal, envelope.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a new_signal message on the bus")
	}
}

func TestEvaluateSymbol_NoSignalStoresNothing(t *testing.T) {
	repo := &recordingSignalRepo{}
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	svc := NewPipelineService(pipelineConfig(), logger.NewNop(), repo, &stubBinanceRepo{candles: trendCandles(100)}, notifications, newFakeCache())
	svc.scorer = &stubScorer{outcome: nil}

	signal, err := svc.EvaluateSymbol(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, signal)
	assert.Zero(t, repo.createdCount())
}

func TestEvaluateSymbol_RiskGateRejects(t *testing.T) {
	repo := &recordingSignalRepo{}
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	svc := NewPipelineService(pipelineConfig(), logger.NewNop(), repo, &stubBinanceRepo{candles: trendCandles(100)}, notifications, newFakeCache())
	svc.scorer = &stubScorer{outcome: &ensemble.Outcome{Direction: dto.DirectionLong, Confidence: 70}}
	svc.risk = &stubRisk{levels: nil}

	signal, err := svc.EvaluateSymbol(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, signal)
	assert.Zero(t, repo.createdCount())
}

func TestEvaluateSymbol_InsufficientHistoryIsNotAnError(t *testing.T) {
	repo := &recordingSignalRepo{}
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	svc := NewPipelineService(pipelineConfig(), logger.NewNop(), repo, &stubBinanceRepo{candles: trendCandles(10)}, notifications, newFakeCache())

	signal, err := svc.EvaluateSymbol(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, signal)
	assert.Zero(t, repo.createdCount())
}

func TestRequestRefresh_CooldownMakesEnqueueIdempotent(t *testing.T) {
	repo := &recordingSignalRepo{}
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	svc := NewPipelineService(pipelineConfig(), logger.NewNop(), repo, &stubBinanceRepo{candles: trendCandles(10)}, notifications, newFakeCache())

	accepted, skipped := svc.RequestRefresh(context.Background(), []string{"BTC/USDT", "DOGE/USDT"})
	assert.Equal(t, []string{"BTC/USDT"}, accepted)
	// Unknown symbols are skipped, not errored.
	assert.Equal(t, []string{"DOGE/USDT"}, skipped)

	// Second request inside the cooldown window enqueues nothing new.
	accepted, skipped = svc.RequestRefresh(context.Background(), []string{"BTC/USDT"})
	assert.Empty(t, accepted)
	assert.Equal(t, []string{"BTC/USDT"}, skipped)
}

func TestPublishPriceUpdates(t *testing.T) {
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := notifications.Subscribe(ctx)
	require.NoError(t, err)

	svc := NewPipelineService(pipelineConfig(), logger.NewNop(), &recordingSignalRepo{}, &stubBinanceRepo{lastPrice: 45123}, notifications, newFakeCache())

	require.NoError(t, svc.PublishPriceUpdates(context.Background()))

	received := make(map[string]float64)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-messages:
			var envelope struct {
				Type string                 `json:"type"`
				Data dto.PriceUpdatePayload `json:"data"`
			}
			require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
			assert.Equal(t, dto.MessageTypePriceUpdate, envelope.Type)
			received[envelope.Data.Symbol] = envelope.Data.Price
		case <-time.After(time.Second):
			t.Fatal("expected price updates for both symbols")
		}
	}
	assert.Equal(t, map[string]float64{"BTC/USDT": 45123, "ETH/USDT": 45123}, received)
}
