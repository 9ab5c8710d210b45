package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"crypto-signals/internal/contract"
	"crypto-signals/internal/dto"
)

// PriceSource supplies market data for the paper adapter. Satisfied by the
// Binance repository.
type PriceSource interface {
	GetOHLCV(ctx context.Context, symbol string, interval string, limit int) ([]dto.OHLCV, error)
	GetLastPrice(ctx context.Context, symbol string) (*dto.BinancePrice, error)
}

// PaperAdapter simulates an exchange account against live market prices.
// Orders fill immediately at the last traded price and balances are tracked
// in memory per user.
type PaperAdapter struct {
	prices PriceSource

	mu       sync.Mutex
	balances map[uint]map[string]float64
	orderSeq int64
}

// DefaultPaperBalance seeds every new paper account.
const DefaultPaperBalance = 10000.0

func NewPaperAdapter(prices PriceSource) *PaperAdapter {
	return &PaperAdapter{
		prices:   prices,
		balances: make(map[uint]map[string]float64),
	}
}

func (a *PaperAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]dto.OHLCV, error) {
	candles, err := a.prices.GetOHLCV(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, NewTransientError(err)
	}
	return candles, nil
}

func (a *PaperAdapter) FetchBalance(ctx context.Context, cred *contract.ExchangeCredential) ([]Balance, error) {
	if cred == nil {
		return nil, NewClientError(errors.New("missing credential"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	account := a.account(cred.UserID)
	balances := make([]Balance, 0, len(account))
	for asset, free := range account {
		balances = append(balances, Balance{Asset: asset, Free: free})
	}
	return balances, nil
}

func (a *PaperAdapter) PlaceOrder(ctx context.Context, cred *contract.ExchangeCredential, req OrderRequest) (*OrderRef, error) {
	if cred == nil {
		return nil, NewClientError(errors.New("missing credential"))
	}
	if req.Quantity <= 0 {
		return nil, NewClientError(fmt.Errorf("invalid quantity %f", req.Quantity))
	}

	last, err := a.prices.GetLastPrice(ctx, req.Symbol)
	if err != nil {
		return nil, NewTransientError(err)
	}

	fillPrice := last.Price
	if req.OrderType == dto.OrderTypeLimit && req.Price > 0 {
		fillPrice = req.Price
	}

	cost := req.Quantity * fillPrice

	a.mu.Lock()
	defer a.mu.Unlock()

	account := a.account(cred.UserID)
	quote := quoteAsset(req.Symbol)
	if req.Side == dto.SideBuy && account[quote] < cost {
		return nil, NewClientError(fmt.Errorf("insufficient %s balance: have %.2f, need %.2f", quote, account[quote], cost))
	}
	if req.Side == dto.SideBuy {
		account[quote] -= cost
	} else {
		account[quote] += cost
	}

	a.orderSeq++
	return &OrderRef{
		OrderID:     "paper-" + strconv.FormatInt(a.orderSeq, 10),
		FilledPrice: fillPrice,
		FilledQty:   req.Quantity,
	}, nil
}

// account returns the caller's balance map, seeding a fresh paper account on
// first use. Callers must hold a.mu.
func (a *PaperAdapter) account(userID uint) map[string]float64 {
	account, ok := a.balances[userID]
	if !ok {
		account = map[string]float64{"USDT": DefaultPaperBalance}
		a.balances[userID] = account
	}
	return account
}

func quoteAsset(symbol string) string {
	for i := len(symbol) - 1; i >= 0; i-- {
		if symbol[i] == '/' {
			return symbol[i+1:]
		}
	}
	return "USDT"
}
