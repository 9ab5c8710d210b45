package service

import (
	"context"
	"encoding/json"

	"crypto-signals/internal/dto"
	"crypto-signals/internal/model"
	"crypto-signals/internal/repository"
	"crypto-signals/pkg/logger"
)

type SignalService interface {
	GetLatestSignals(ctx context.Context, symbol string) ([]dto.SignalPayload, error)
	GetSignal(ctx context.Context, id uint) (*dto.SignalPayload, error)
}

type signalService struct {
	log        *logger.Logger
	signalRepo repository.SignalRepository
}

func NewSignalService(log *logger.Logger, signalRepo repository.SignalRepository) *signalService {
	return &signalService{
		log:        log,
		signalRepo: signalRepo,
	}
}

func (s *signalService) GetLatestSignals(ctx context.Context, symbol string) ([]dto.SignalPayload, error) {
	signals, err := s.signalRepo.GetLatest(ctx, symbol)
	if err != nil {
		return nil, err
	}

	payloads := make([]dto.SignalPayload, 0, len(signals))
	for i := range signals {
		payloads = append(payloads, ToSignalPayload(&signals[i]))
	}
	return payloads, nil
}

func (s *signalService) GetSignal(ctx context.Context, id uint) (*dto.SignalPayload, error) {
	signal, err := s.signalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payload := ToSignalPayload(signal)
	return &payload, nil
}

// ToSignalPayload converts a stored signal into its wire shape, decoding the
// JSON columns. Corrupt columns degrade to empty values rather than erroring.
func ToSignalPayload(signal *model.Signal) dto.SignalPayload {
	var modelScores map[string]float64
	if len(signal.ModelScores) > 0 {
		_ = json.Unmarshal(signal.ModelScores, &modelScores)
	}
	var rationale []string
	if len(signal.Rationale) > 0 {
		_ = json.Unmarshal(signal.Rationale, &rationale)
	}

	return dto.SignalPayload{
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
}
