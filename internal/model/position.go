package model

import "time"

// Position tracks a signal execution through its lifecycle:
// requested -> submitted -> filled | rejected | failed, and filled -> closed.
type Position struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"index:idx_positions_user_signal;not null" json:"user_id"`
	SignalID      uint       `gorm:"index:idx_positions_user_signal;not null" json:"signal_id"`
	Symbol        string     `gorm:"index;not null" json:"symbol"`
	Direction     string     `gorm:"not null" json:"direction"`
	Side          string     `gorm:"not null" json:"side"`
	OrderType     string     `gorm:"not null" json:"order_type"`
	Status        string     `gorm:"index;not null" json:"status"`
	Quantity      float64    `json:"quantity"`
	EntryPrice    float64    `json:"entry_price"`
	ExitPrice     *float64   `json:"exit_price,omitempty"`
	TargetPrice   float64    `json:"target_price"`
	StopLoss      float64    `json:"stop_loss"`
	SizePercent   float64    `json:"size_percent"`
	RealizedPnL   *float64   `json:"realized_pnl,omitempty"`
	ExchangeRef   string     `json:"exchange_ref,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	FilledAt      *time.Time `json:"filled_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) IsTerminal() bool {
	switch p.Status {
	case "rejected", "failed", "closed":
		return true
	}
	return false
}

func (p *Position) IsOpen() bool {
	return p.Status == "filled"
}
