package dto

// Signal direction
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Order side
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order type
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Position status state machine. A position becomes immutable once it reaches
// StatusRejected, StatusFailed or StatusClosed.
const (
	StatusRequested = "requested"
	StatusSubmitted = "submitted"
	StatusFilled    = "filled"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
	StatusClosed    = "closed"
)

// Server to client message types
const (
	MessageTypeNewSignal    = "new_signal"
	MessageTypePriceUpdate  = "price_update"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypeConnected    = "connected"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Client to server actions
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Sub-model names, fixed set combined by the ensemble scorer.
const (
	ModelTechnical          = "technical"
	ModelMomentum           = "momentum"
	ModelMeanReversion      = "mean_reversion"
	ModelVolatilityBreakout = "volatility_breakout"
)
