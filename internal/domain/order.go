package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeMarket             OrderType = "MARKET"
	OrderTypeLimit              OrderType = "LIMIT"
	OrderTypeStopMarket         OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket   OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTrailingStopMarket OrderType = "TRAILING_STOP_MARKET"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// OrderRequest describes an order to be submitted to the exchange.
// Futures has no OCO, so take-profit and stop-loss legs are separate
// requests. When ClosePosition is set, Quantity must be left zero:
// Binance closes the whole position at trigger and rejects orders that
// carry both.
type OrderRequest struct {
	Symbol          string
	Side            Side
	Type            OrderType
	Quantity        float64
	Price           float64
	StopPrice       float64
	ActivationPrice float64
	CallbackRate    float64 // percent, e.g. 0.5 for 0.5%
	ReduceOnly      bool
	ClosePosition   bool
	TimeInForce     string
	ClientOrderID   string
}

// Order is the exchange's view of a submitted order.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Status        OrderStatus
	Price         float64
	StopPrice     float64
	Quantity      float64
	ExecutedQty   float64
	AvgPrice      float64
	CreatedAt     time.Time
}

// OrderUpdate is a single event from the user-data order stream.
type OrderUpdate struct {
	Symbol  string
	OrderID int64
	Type    OrderType
	Status  OrderStatus
}

// Position represents an open futures position. Amount is signed the
// way Binance reports positionAmt: positive for long, negative for short.
type Position struct {
	Symbol        string
	Amount        float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      int
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Kline is a streamed candlestick event. Closed reports whether the
// bar has finished; the strategy only acts on closed bars.
type Kline struct {
	Symbol   string
	Interval string
	High     float64
	Low      float64
	Close    float64
	Closed   bool
}

// TradeRecord is one row of the trade journal.
type TradeRecord struct {
	ID         int64
	Symbol     string
	Side       Side
	Quantity   float64
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
	Status     string
	CreatedAt  time.Time
}
