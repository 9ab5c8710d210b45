package exchange

import (
	"context"

	"crypto-signals/internal/contract"
	"crypto-signals/internal/dto"
)

// Balance is a single asset balance on the user's exchange account.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// OrderRequest describes one order submission.
type OrderRequest struct {
	Symbol    string
	Side      string
	OrderType string
	Quantity  float64
	Price     float64
}

// OrderRef is the exchange's acknowledgment of a placed order.
type OrderRef struct {
	OrderID     string
	FilledPrice float64
	FilledQty   float64
}

// Adapter is the exchange integration surface. Implementations classify
// failures as TransientError or ClientError so the bridge can decide whether
// to retry.
type Adapter interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]dto.OHLCV, error)
	FetchBalance(ctx context.Context, cred *contract.ExchangeCredential) ([]Balance, error)
	PlaceOrder(ctx context.Context, cred *contract.ExchangeCredential, req OrderRequest) (*OrderRef, error)
}
