package repository

import (
	"context"
	"errors"

	"crypto-signals/internal/model"
	"crypto-signals/pkg/utils"

	"gorm.io/gorm"
)

var ErrPositionNotFound = errors.New("position not found")

type GetPositionsParam struct {
	UserID   *uint
	SignalID *uint
	Symbol   string
	Statuses []string
}

type PositionRepository interface {
	Create(ctx context.Context, position *model.Position, opts ...utils.DBOption) error
	Update(ctx context.Context, position *model.Position, opts ...utils.DBOption) error
	GetByID(ctx context.Context, id uint) (*model.Position, error)
	Get(ctx context.Context, param GetPositionsParam) ([]model.Position, error)
}

type positionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) PositionRepository {
	return &positionRepository{
		db: db,
	}
}

func (r *positionRepository) Create(ctx context.Context, position *model.Position, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db, opts...).WithContext(ctx)
	return tx.Create(position).Error
}

func (r *positionRepository) Update(ctx context.Context, position *model.Position, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db, opts...).WithContext(ctx)
	return tx.Save(position).Error
}

func (r *positionRepository) GetByID(ctx context.Context, id uint) (*model.Position, error) {
	var position model.Position
	if err := r.db.WithContext(ctx).First(&position, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return &position, nil
}

func (r *positionRepository) Get(ctx context.Context, param GetPositionsParam) ([]model.Position, error) {
	var opts []utils.DBOption
	if param.UserID != nil {
		opts = append(opts, utils.WithWhere("user_id = ?", *param.UserID))
	}
	if param.SignalID != nil {
		opts = append(opts, utils.WithWhere("signal_id = ?", *param.SignalID))
	}
	if param.Symbol != "" {
		opts = append(opts, utils.WithWhere("symbol = ?", param.Symbol))
	}
	if len(param.Statuses) > 0 {
		opts = append(opts, utils.WithWhere("status IN (?)", param.Statuses))
	}

	var positions []model.Position
	query := utils.ApplyOptions(r.db, opts...).WithContext(ctx)
	if err := query.Order("created_at DESC").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}
