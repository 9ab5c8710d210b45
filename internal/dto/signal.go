package dto

import "time"

// SignalPayload is the wire shape of a signal inside bus envelopes and API
// responses.
type SignalPayload struct {
	ID              uint               `json:"id"`
	Symbol          string             `json:"symbol"`
	Timeframe       string             `json:"timeframe"`
	Direction       string             `json:"direction"`
	EntryPrice      float64            `json:"entry_price"`
	TargetPrice     float64            `json:"target_price"`
	StopLoss        float64            `json:"stop_loss"`
	Confidence      float64            `json:"confidence"`
	RiskRewardRatio float64            `json:"risk_reward_ratio"`
	ModelScores     map[string]float64 `json:"model_scores"`
	Rationale       []string           `json:"rationale"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	IsActive        bool               `json:"is_active"`
}

type RefreshRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
}

type RefreshResponse struct {
	Accepted []string `json:"accepted"`
	Skipped  []string `json:"skipped,omitempty"`
}

type PriceUpdatePayload struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
}
