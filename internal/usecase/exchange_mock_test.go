package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitos/futures_atr_bot/internal/domain"
)

// fakeExchange is the in-memory Exchange used across the package
// tests. Zero value behaves like a quiet exchange with no position and
// instantly filling orders.
type fakeExchange struct {
	mu sync.Mutex

	MarkPrice    float64
	MarkPriceErr error

	Position      *domain.Position
	PositionErr   error
	PositionCalls int

	LeverageCalls  []int
	SetLeverageErr error

	Placed      []*domain.OrderRequest
	PlaceErrFor map[domain.OrderType]error
	nextOrderID int64

	GetOrderCalls  int
	FillAfterPolls int // entry reports FILLED only after this many GetOrder calls
	GetOrderErr    error

	Cancelled []int64
	CancelErr error

	Candles map[string][]domain.Candle // key: symbol + "/" + interval

	orderCallbacks []func(domain.OrderUpdate)
	klineCallbacks []func(domain.Kline)
}

func (m *fakeExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkPriceErr != nil {
		return 0, m.MarkPriceErr
	}
	return m.MarkPrice, nil
}

func (m *fakeExchange) SetMarkPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkPrice = price
}

func (m *fakeExchange) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PositionCalls++
	if m.PositionErr != nil {
		return nil, m.PositionErr
	}
	if m.Position != nil {
		return m.Position, nil
	}
	return &domain.Position{Symbol: symbol}, nil
}

func (m *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetLeverageErr != nil {
		return m.SetLeverageErr
	}
	m.LeverageCalls = append(m.LeverageCalls, leverage)
	return nil
}

func (m *fakeExchange) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.PlaceErrFor[req.Type]; err != nil {
		return nil, err
	}
	m.nextOrderID++
	m.Placed = append(m.Placed, req)
	return &domain.Order{
		OrderID:       m.nextOrderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        domain.OrderStatusNew,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
	}, nil
}

func (m *fakeExchange) GetOrder(ctx context.Context, symbol string, orderID int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetOrderCalls++
	if m.GetOrderErr != nil {
		return nil, m.GetOrderErr
	}
	status := domain.OrderStatusFilled
	if m.GetOrderCalls <= m.FillAfterPolls {
		status = domain.OrderStatusNew
	}
	return &domain.Order{OrderID: orderID, Symbol: symbol, Status: status}, nil
}

func (m *fakeExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}

func (m *fakeExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Candles[symbol+"/"+interval], nil
}

func (m *fakeExchange) OnOrderUpdate(callback func(update domain.OrderUpdate)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderCallbacks = append(m.orderCallbacks, callback)
}

func (m *fakeExchange) OnKline(callback func(kline domain.Kline)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.klineCallbacks = append(m.klineCallbacks, callback)
}

func (m *fakeExchange) SubscribeKlines(symbols []string, intervals []string) error { return nil }

// placedOfType collects submitted requests of one order type.
func (m *fakeExchange) placedOfType(t domain.OrderType) []*domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OrderRequest
	for _, req := range m.Placed {
		if req.Type == t {
			out = append(out, req)
		}
	}
	return out
}

// fakeTradeRepo captures journal writes.
type fakeTradeRepo struct {
	mu      sync.Mutex
	Records []*domain.TradeRecord
	Err     error
}

func (r *fakeTradeRepo) RecordTrade(ctx context.Context, trade *domain.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Records = append(r.Records, trade)
	return nil
}

func (r *fakeTradeRepo) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.Records) {
		limit = len(r.Records)
	}
	return r.Records[:limit], nil
}

var errBoom = fmt.Errorf("simulated exchange failure")
