package service

import (
	"crypto-signals/config"
	"crypto-signals/internal/contract"
	"crypto-signals/internal/exchange"
	"crypto-signals/internal/repository"
	"crypto-signals/pkg/bus"
	"crypto-signals/pkg/cache"
	"crypto-signals/pkg/logger"
)

type Service struct {
	PipelineService  PipelineService
	SignalService    SignalService
	ExecutionService ExecutionService
	SchedulerService SchedulerService
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	inmemoryCache cache.Cache,
	notifications bus.Bus,
	adapter exchange.Adapter,
	gate contract.SubscriptionGate,
	credentials contract.CredentialStore,
) *Service {
	pipelineService := NewPipelineService(cfg, log, repo.SignalRepo, repo.BinanceRepo, notifications, inmemoryCache)
	signalService := NewSignalService(log, repo.SignalRepo)
	executionService := NewExecutionService(cfg, log, repo.SignalRepo, repo.PositionRepo, repo.BinanceRepo, adapter, gate, credentials)
	schedulerService := NewSchedulerService(cfg, log, pipelineService, executionService)

	return &Service{
		PipelineService:  pipelineService,
		SignalService:    signalService,
		ExecutionService: executionService,
		SchedulerService: schedulerService,
	}
}
