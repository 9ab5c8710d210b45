package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"crypto-signals/config"
	"crypto-signals/pkg/logger"
)

// SchedulerService drives the pipeline on a cron cadence plus the faster
// maintenance loops (price updates, expiry sweep, position checks).
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop() context.Context
}

type schedulerService struct {
	cfg       *config.Config
	log       *logger.Logger
	pipeline  PipelineService
	execution ExecutionService
	cron      *cron.Cron
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	pipeline PipelineService,
	execution ExecutionService,
) *schedulerService {
	return &schedulerService{
		cfg:       cfg,
		log:       log,
		pipeline:  pipeline,
		execution: execution,
		cron:      cron.New(),
	}
}

func (s *schedulerService) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Pipeline.CronExpression, func() {
		tickCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		if err := s.pipeline.RunTick(tickCtx); err != nil {
			s.log.ErrorContext(tickCtx, "Pipeline tick failed", logger.ErrorField(err))
		}
	})
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc("* * * * *", func() {
		loopCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if err := s.pipeline.PublishPriceUpdates(loopCtx); err != nil {
			s.log.WarnContext(loopCtx, "Price update loop failed", logger.ErrorField(err))
		}
		if err := s.execution.CheckOpenPositions(loopCtx); err != nil {
			s.log.WarnContext(loopCtx, "Open position check failed", logger.ErrorField(err))
		}
	})
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc("*/5 * * * *", func() {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if err := s.pipeline.ExpireStaleSignals(sweepCtx); err != nil {
			s.log.ErrorContext(sweepCtx, "Expiry sweep failed", logger.ErrorField(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.InfoContext(ctx, "Scheduler started",
		logger.StringField("pipeline_cron", s.cfg.Pipeline.CronExpression),
	)
	return nil
}

func (s *schedulerService) Stop() context.Context {
	return s.cron.Stop()
}
