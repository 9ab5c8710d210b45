package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-signals/internal/model"
	"crypto-signals/pkg/cache"
	"crypto-signals/pkg/utils"

	"gorm.io/gorm"
)

var ErrSignalNotFound = errors.New("signal not found")

const latestSignalCacheKey = "signals:latest:"

type SignalRepository interface {
	Create(ctx context.Context, signal *model.Signal) error
	GetByID(ctx context.Context, id uint) (*model.Signal, error)
	GetLatest(ctx context.Context, symbol string) ([]model.Signal, error)
	GetActiveBySymbol(ctx context.Context, symbol string) (*model.Signal, error)
	Deactivate(ctx context.Context, id uint, opts ...utils.DBOption) error
	ExpireStale(ctx context.Context, now time.Time) ([]model.Signal, error)
}

type signalRepository struct {
	db    *gorm.DB
	uow   UnitOfWork
	cache cache.Cache
}

func NewSignalRepository(db *gorm.DB, memCache cache.Cache) SignalRepository {
	return &signalRepository{
		db:    db,
		uow:   NewUnitOfWork(db),
		cache: memCache,
	}
}

// Create inserts the new signal and deactivates any previously active signal
// for the same symbol in the same transaction, so there is never more than
// one active signal per symbol. The cache entry is invalidated only after the
// write commits.
func (r *signalRepository) Create(ctx context.Context, signal *model.Signal) error {
	err := r.uow.Run(func(opts ...utils.DBOption) error {
		tx := utils.ApplyOptions(r.db, opts...).WithContext(ctx)

		if err := tx.Model(&model.Signal{}).
			Where("symbol = ? AND is_active = ?", signal.Symbol, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to supersede active signal: %w", err)
		}

		if err := tx.Create(signal).Error; err != nil {
			return fmt.Errorf("failed to create signal: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.cache.Delete(latestSignalCacheKey + signal.Symbol)
	r.cache.Delete(latestSignalCacheKey)
	return nil
}

func (r *signalRepository) GetByID(ctx context.Context, id uint) (*model.Signal, error) {
	var signal model.Signal
	if err := r.db.WithContext(ctx).First(&signal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return &signal, nil
}

// GetLatest returns active signals, newest first, filtered to one symbol when
// given. Results are cached briefly to absorb dashboard polling.
func (r *signalRepository) GetLatest(ctx context.Context, symbol string) ([]model.Signal, error) {
	cacheKey := latestSignalCacheKey + symbol
	if cached, ok := r.cache.Get(cacheKey); ok {
		if signals, ok := cached.([]model.Signal); ok {
			return signals, nil
		}
	}

	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var signals []model.Signal
	if err := query.Order("created_at DESC").Limit(50).Find(&signals).Error; err != nil {
		return nil, err
	}

	r.cache.Set(cacheKey, signals, 30*time.Second)
	return signals, nil
}

func (r *signalRepository) GetActiveBySymbol(ctx context.Context, symbol string) (*model.Signal, error) {
	var signal model.Signal
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND is_active = ?", symbol, true).
		Order("created_at DESC").
		First(&signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return &signal, nil
}

func (r *signalRepository) Deactivate(ctx context.Context, id uint, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db, opts...).WithContext(ctx)
	err := tx.Model(&model.Signal{}).Where("id = ?", id).Update("is_active", false).Error
	if err != nil {
		return err
	}
	r.cache.Flush()
	return nil
}

// ExpireStale flips every active signal past its expiry and returns the rows
// it touched so callers can log or notify.
func (r *signalRepository) ExpireStale(ctx context.Context, now time.Time) ([]model.Signal, error) {
	var expired []model.Signal
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Find(&expired).Error
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(expired))
	for _, s := range expired {
		ids = append(ids, s.ID)
	}
	err = r.db.WithContext(ctx).Model(&model.Signal{}).
		Where("id IN (?)", ids).
		Update("is_active", false).Error
	if err != nil {
		return nil, err
	}

	for _, s := range expired {
		r.cache.Delete(latestSignalCacheKey + s.Symbol)
	}
	r.cache.Delete(latestSignalCacheKey)
	return expired, nil
}
