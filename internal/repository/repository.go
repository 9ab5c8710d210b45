package repository

import (
	"crypto-signals/config"
	"crypto-signals/pkg/cache"
	"crypto-signals/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	SignalRepo   SignalRepository
	PositionRepo PositionRepository
	BinanceRepo  BinanceRepository
	UnitOfWork   UnitOfWork
}

func NewRepository(cfg *config.Config, memCache cache.Cache, db *gorm.DB, log *logger.Logger) *Repository {
	return &Repository{
		SignalRepo:   NewSignalRepository(db, memCache),
		PositionRepo: NewPositionRepository(db),
		BinanceRepo:  NewBinanceRepository(cfg, log),
		UnitOfWork:   NewUnitOfWork(db),
	}
}
