package dto

// ExecuteSignalRequest turns an accepted signal into a live order. An empty
// connection id selects the user's default exchange connection.
type ExecuteSignalRequest struct {
	SignalID     uint    `json:"signal_id" validate:"required"`
	ConnectionID string  `json:"connection_id"`
	SizePercent  float64 `json:"size_percent" validate:"required,gt=0,lte=100"`
	OrderType    string  `json:"order_type" validate:"omitempty,oneof=market limit"`
}

type ClosePositionRequest struct {
	ExitPrice float64 `json:"exit_price" validate:"required,gt=0"`
}
