package model

import (
	"time"

	"gorm.io/datatypes"
)

// Signal is a persisted trading recommendation produced by the scoring
// pipeline. At most one active signal exists per symbol; newer signals
// supersede older ones by flipping is_active.
type Signal struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Symbol          string         `gorm:"index;not null" json:"symbol"`
	Timeframe       string         `gorm:"not null" json:"timeframe"`
	Direction       string         `gorm:"not null" json:"direction"`
	EntryPrice      float64        `gorm:"not null" json:"entry_price"`
	TargetPrice     float64        `gorm:"not null" json:"target_price"`
	StopLoss        float64        `gorm:"not null" json:"stop_loss"`
	Confidence      float64        `gorm:"not null" json:"confidence"`
	RiskRewardRatio float64        `gorm:"not null" json:"risk_reward_ratio"`
	ModelScores     datatypes.JSON `json:"model_scores"`
	Rationale       datatypes.JSON `json:"rationale"`
	IsActive        bool           `gorm:"index;default:true" json:"is_active"`
	ExpiresAt       time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

func (s *Signal) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
