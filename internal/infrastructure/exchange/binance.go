package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/futures_atr_bot/internal/domain"
)

const (
	FuturesWSBaseURL        = "wss://fstream.binance.com"
	FuturesTestnetWSBaseURL = "wss://stream.binancefuture.com"

	listenKeyKeepalive = 25 * time.Minute
)

// BinanceAdapter implements domain.Exchange against Binance USD-M
// futures. REST goes through the go-binance client; the kline and
// user-data streams are raw websocket connections.
type BinanceAdapter struct {
	client *futures.Client
	wsBase string
	logger *zap.Logger

	mu             sync.Mutex
	klineConn      *websocket.Conn
	userConn       *websocket.Conn
	orderCallbacks []func(domain.OrderUpdate)
	klineCallbacks []func(domain.Kline)
}

func NewBinanceAdapter(apiKey, apiSecret string, testnet bool, logger *zap.Logger) *BinanceAdapter {
	wsBase := FuturesWSBaseURL
	if testnet {
		futures.UseTestnet = true
		wsBase = FuturesTestnetWSBaseURL
	}
	return &BinanceAdapter{
		client: binance.NewFuturesClient(apiKey, apiSecret),
		wsBase: wsBase,
		logger: logger,
	}
}

// --- REST API ---

func (b *BinanceAdapter) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	res, err := b.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("no mark price for %s", symbol)
	}
	return strconv.ParseFloat(res[0].MarkPrice, 64)
}

// GetPosition returns the open position for symbol, or nil when flat.
func (b *BinanceAdapter) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	res, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range res {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(p.Leverage)
		return &domain.Position{
			Symbol:        p.Symbol,
			Amount:        amt,
			EntryPrice:    entry,
			MarkPrice:     mark,
			UnrealizedPnL: pnl,
			Leverage:      lev,
		}, nil
	}
	return nil, nil
}

func (b *BinanceAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return err
}

func (b *BinanceAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	res, err := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(res))
	for _, k := range res {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, domain.Candle{
			Time:   k.OpenTime / 1000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return candles, nil
}

func (b *BinanceAdapter) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (*domain.Order, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type))

	// closePosition orders close the whole position at trigger; the API
	// rejects them when quantity or reduceOnly is also set.
	if req.ClosePosition {
		svc = svc.ClosePosition(true)
	} else {
		if req.Quantity > 0 {
			svc = svc.Quantity(fmtNum(req.Quantity))
		}
		if req.ReduceOnly {
			svc = svc.ReduceOnly(true)
		}
	}

	if req.Price > 0 {
		svc = svc.Price(fmtNum(req.Price))
	}
	if req.StopPrice > 0 {
		svc = svc.StopPrice(fmtNum(req.StopPrice))
	}
	if req.ActivationPrice > 0 {
		svc = svc.ActivationPrice(fmtNum(req.ActivationPrice))
	}
	if req.CallbackRate > 0 {
		svc = svc.CallbackRate(fmtNum(req.CallbackRate))
	}
	if req.TimeInForce != "" {
		svc = svc.TimeInForce(futures.TimeInForceType(req.TimeInForce))
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}

	price, _ := strconv.ParseFloat(res.Price, 64)
	stopPrice, _ := strconv.ParseFloat(res.StopPrice, 64)
	qty, _ := strconv.ParseFloat(res.OrigQuantity, 64)
	executed, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(res.AvgPrice, 64)

	return &domain.Order{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          domain.Side(res.Side),
		Type:          domain.OrderType(res.Type),
		Status:        domain.OrderStatus(res.Status),
		Price:         price,
		StopPrice:     stopPrice,
		Quantity:      qty,
		ExecutedQty:   executed,
		AvgPrice:      avg,
		CreatedAt:     time.UnixMilli(res.UpdateTime),
	}, nil
}

func (b *BinanceAdapter) GetOrder(ctx context.Context, symbol string, orderID int64) (*domain.Order, error) {
	res, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, err
	}

	price, _ := strconv.ParseFloat(res.Price, 64)
	stopPrice, _ := strconv.ParseFloat(res.StopPrice, 64)
	qty, _ := strconv.ParseFloat(res.OrigQuantity, 64)
	executed, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(res.AvgPrice, 64)

	return &domain.Order{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          domain.Side(res.Side),
		Type:          domain.OrderType(res.Type),
		Status:        domain.OrderStatus(res.Status),
		Price:         price,
		StopPrice:     stopPrice,
		Quantity:      qty,
		ExecutedQty:   executed,
		AvgPrice:      avg,
		CreatedAt:     time.UnixMilli(res.Time),
	}, nil
}

func (b *BinanceAdapter) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	return err
}

// fmtNum renders a float for the API without binary noise like
// 0.30000000000000004.
func fmtNum(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// --- Streams ---

func (b *BinanceAdapter) OnOrderUpdate(callback func(update domain.OrderUpdate)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderCallbacks = append(b.orderCallbacks, callback)
}

func (b *BinanceAdapter) OnKline(callback func(kline domain.Kline)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.klineCallbacks = append(b.klineCallbacks, callback)
}

// SubscribeKlines opens one combined stream covering every
// symbol/interval pair and fans events out to OnKline callbacks.
func (b *BinanceAdapter) SubscribeKlines(symbols []string, intervals []string) error {
	var streams []string
	for _, s := range symbols {
		for _, i := range intervals {
			streams = append(streams, strings.ToLower(s)+"@kline_"+i)
		}
	}
	if len(streams) == 0 {
		return nil
	}

	url := b.wsBase + "/stream?streams=" + strings.Join(streams, "/")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial kline stream: %w", err)
	}

	b.mu.Lock()
	b.klineConn = c
	b.mu.Unlock()

	go b.readKlines(c)
	return nil
}

type combinedKlineEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Kline  struct {
			Interval string `json:"i"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Closed   bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (b *BinanceAdapter) readKlines(c *websocket.Conn) {
	defer func() {
		c.Close()
		b.mu.Lock()
		if b.klineConn == c {
			b.klineConn = nil
		}
		b.mu.Unlock()
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			b.logger.Error("Kline stream read error", zap.Error(err))
			return
		}

		var event combinedKlineEvent
		if err := json.Unmarshal(message, &event); err != nil {
			b.logger.Warn("Kline stream unmarshal error", zap.Error(err))
			continue
		}
		if event.Data.Event != "kline" {
			continue
		}

		high, _ := strconv.ParseFloat(event.Data.Kline.High, 64)
		low, _ := strconv.ParseFloat(event.Data.Kline.Low, 64)
		closePrice, _ := strconv.ParseFloat(event.Data.Kline.Close, 64)

		kline := domain.Kline{
			Symbol:   event.Data.Symbol,
			Interval: event.Data.Kline.Interval,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Closed:   event.Data.Kline.Closed,
		}

		b.mu.Lock()
		callbacks := make([]func(domain.Kline), len(b.klineCallbacks))
		copy(callbacks, b.klineCallbacks)
		b.mu.Unlock()

		for _, cb := range callbacks {
			cb(kline)
		}
	}
}

// StartUserStream opens the user-data stream and keeps the listen key
// alive until ctx is cancelled. Order events are fanned out to
// OnOrderUpdate callbacks.
func (b *BinanceAdapter) StartUserStream(ctx context.Context) error {
	listenKey, err := b.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return fmt.Errorf("start user stream: %w", err)
	}

	c, _, err := websocket.DefaultDialer.Dial(b.wsBase+"/ws/"+listenKey, nil)
	if err != nil {
		return fmt.Errorf("dial user stream: %w", err)
	}

	b.mu.Lock()
	b.userConn = c
	b.mu.Unlock()

	go b.readUserStream(c)
	go b.keepAliveLoop(ctx, listenKey)
	return nil
}

func (b *BinanceAdapter) keepAliveLoop(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(listenKeyKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				b.logger.Warn("Listen key keepalive failed", zap.Error(err))
			}
		}
	}
}

type userStreamEvent struct {
	Event string `json:"e"`
	Order struct {
		Symbol  string `json:"s"`
		Type    string `json:"o"`
		Status  string `json:"X"`
		OrderID int64  `json:"i"`
	} `json:"o"`
}

func (b *BinanceAdapter) readUserStream(c *websocket.Conn) {
	defer func() {
		c.Close()
		b.mu.Lock()
		if b.userConn == c {
			b.userConn = nil
		}
		b.mu.Unlock()
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			b.logger.Error("User stream read error", zap.Error(err))
			return
		}

		var event userStreamEvent
		if err := json.Unmarshal(message, &event); err != nil {
			b.logger.Warn("User stream unmarshal error", zap.Error(err))
			continue
		}
		if event.Event != "ORDER_TRADE_UPDATE" {
			continue
		}

		update := domain.OrderUpdate{
			Symbol:  event.Order.Symbol,
			OrderID: event.Order.OrderID,
			Type:    domain.OrderType(event.Order.Type),
			Status:  domain.OrderStatus(event.Order.Status),
		}

		b.mu.Lock()
		callbacks := make([]func(domain.OrderUpdate), len(b.orderCallbacks))
		copy(callbacks, b.orderCallbacks)
		b.mu.Unlock()

		for _, cb := range callbacks {
			cb(update)
		}
	}
}

// Close tears down any open stream connections.
func (b *BinanceAdapter) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.klineConn != nil {
		b.klineConn.Close()
		b.klineConn = nil
	}
	if b.userConn != nil {
		b.userConn.Close()
		b.userConn = nil
	}
}
