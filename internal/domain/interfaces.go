package domain

import "context"

// Exchange defines the interface for interacting with a futures exchange.
type Exchange interface {
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// Order management
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (*Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// Streams
	OnOrderUpdate(callback func(update OrderUpdate))
	OnKline(callback func(kline Kline))
	SubscribeKlines(symbols []string, intervals []string) error
}

// TradeRepository defines storage operations for the trade journal.
type TradeRepository interface {
	RecordTrade(ctx context.Context, trade *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
}
