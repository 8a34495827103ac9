package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/futures_atr_bot/internal/domain"
	"github.com/vitos/futures_atr_bot/internal/metrics"
	"go.uber.org/zap"
)

// TradingConfig sizes and shapes every trade the pipeline opens.
type TradingConfig struct {
	MarginPerTrade  float64                           `yaml:"margin_per_trade"` // USD margin committed per trade
	Leverage        map[string]int                    `yaml:"leverage"`         // per-symbol leverage
	DefaultLeverage int                               `yaml:"default_leverage"`
	SLMultiplier    float64                           `yaml:"sl_multiplier"` // stop distance in ATRs
	TPMultiplier    float64                           `yaml:"tp_multiplier"` // target distance in ATRs
	MinNotional     float64                           `yaml:"min_notional"`  // below this the exchange rejects, so we do first
	UseMarketEntry  bool                              `yaml:"use_market_entry"`
	UseMarketTP     bool                              `yaml:"use_market_tp"`
	UseTrailingStop bool                              `yaml:"use_trailing_stop"`
	Precision       map[string]domain.SymbolPrecision `yaml:"precision"`
}

func (c TradingConfig) leverageFor(symbol string) int {
	if lev, ok := c.Leverage[symbol]; ok {
		return lev
	}
	return c.DefaultLeverage
}

func (c TradingConfig) precisionFor(symbol string) domain.SymbolPrecision {
	if p, ok := c.Precision[symbol]; ok {
		return p
	}
	return domain.DefaultPrecision
}

// OrderService opens one fully protected trade per signal: entry order,
// take-profit and stop-loss legs, and a stop guard that escalates the
// protection as price moves favourably. Futures has no OCO, so the two
// protective legs are submitted individually and nothing ties them
// together except the reconciler.
type OrderService struct {
	exchange   domain.Exchange
	trades     domain.TradeRepository // optional
	reconciler *Reconciler            // optional
	guards     *StopGuardService      // optional, required when UseTrailingStop
	config     TradingConfig
	retry      RetryPolicy
	logger     *zap.Logger

	fillPollAttempts int
	fillPollInterval time.Duration
}

func NewOrderService(
	exchange domain.Exchange,
	trades domain.TradeRepository,
	reconciler *Reconciler,
	guards *StopGuardService,
	config TradingConfig,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		exchange:         exchange,
		trades:           trades,
		reconciler:       reconciler,
		guards:           guards,
		config:           config,
		retry:            DefaultRetryPolicy(),
		logger:           logger,
		fillPollAttempts: 5,
		fillPollInterval: 1 * time.Second,
	}
}

// PlaceTrade opens a position with its take-profit and stop-loss legs.
// price is the signal price and atr scales the protective distances.
// It reports success as a plain bool: every fault is logged and
// journaled here, never propagated to the strategy loop.
func (s *OrderService) PlaceTrade(ctx context.Context, symbol string, side domain.Side, price, atr float64) bool {
	lev := s.config.leverageFor(symbol)
	notional := s.config.MarginPerTrade * float64(lev)
	qty := notional / price
	if qty*price < s.config.MinNotional {
		s.logger.Error("Order notional below minimum",
			zap.String("symbol", symbol),
			zap.Float64("notional", qty*price),
			zap.Float64("min_notional", s.config.MinNotional))
		metrics.TradeRejections.WithLabelValues("min_notional").Inc()
		return false
	}

	var sl, tp float64
	if side == domain.SideBuy {
		sl = price - s.config.SLMultiplier*atr
		tp = price + s.config.TPMultiplier*atr
	} else {
		sl = price + s.config.SLMultiplier*atr
		tp = price - s.config.TPMultiplier*atr
	}

	prec := s.config.precisionFor(symbol)
	qty = prec.RoundQty(qty)
	price = prec.RoundPrice(price)
	sl = prec.RoundPrice(sl)
	tp = prec.RoundPrice(tp)

	// Keep the trigger prices a small buffer away from the entry so
	// tick-size rounding cannot collapse a leg onto it.
	buffer := 0.001 * price
	if side == domain.SideBuy {
		sl = min(sl, price-buffer)
		tp = max(tp, price+buffer)
		if sl >= price || tp <= price {
			s.logger.Warn("Degenerate protective prices for BUY",
				zap.String("symbol", symbol),
				zap.Float64("entry", price),
				zap.Float64("sl", sl),
				zap.Float64("tp", tp))
			metrics.TradeRejections.WithLabelValues("degenerate_levels").Inc()
			return false
		}
	} else {
		sl = max(sl, price+buffer)
		tp = min(tp, price-buffer)
		if sl <= price || tp >= price {
			s.logger.Warn("Degenerate protective prices for SELL",
				zap.String("symbol", symbol),
				zap.Float64("entry", price),
				zap.Float64("sl", sl),
				zap.Float64("tp", tp))
			metrics.TradeRejections.WithLabelValues("degenerate_levels").Inc()
			return false
		}
	}

	pos, err := s.exchange.GetPosition(ctx, symbol)
	if err != nil {
		s.logger.Error("Position check failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		s.journal(symbol, side, qty, price, tp, sl, fmt.Sprintf("ERROR: %v", err))
		return false
	}
	if pos != nil && pos.Amount != 0 {
		s.logger.Info("Existing position, skipping trade",
			zap.String("symbol", symbol),
			zap.Float64("position_amt", pos.Amount))
		metrics.TradeRejections.WithLabelValues("position_exists").Inc()
		return false
	}

	s.logger.Info("Placing trade",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.Float64("entry", price),
		zap.Float64("sl", sl),
		zap.Float64("tp", tp),
		zap.Int("leverage", lev))

	if err := s.submitLegs(ctx, symbol, side, qty, price, sl, tp, atr, lev); err != nil {
		s.logger.Error("Trade failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		s.journal(symbol, side, qty, price, tp, sl, fmt.Sprintf("ERROR: %v", err))
		return false
	}

	metrics.OrdersPlaced.WithLabelValues(symbol, string(side)).Inc()
	s.journal(symbol, side, qty, price, tp, sl, "FILLED")
	return true
}

// submitLegs runs the exchange-facing steps in strict order: leverage,
// entry, fill confirmation, take-profit, stop-loss, stop guard handoff.
// A failure after the entry filled leaves the position with whatever
// legs made it out; there is no rollback here.
func (s *OrderService) submitLegs(ctx context.Context, symbol string, side domain.Side, qty, price, sl, tp, atr float64, lev int) error {
	if err := withRetry(ctx, s.logger, s.retry, "set leverage", func(ctx context.Context) error {
		return s.exchange.SetLeverage(ctx, symbol, lev)
	}); err != nil {
		return err
	}

	entryReq := &domain.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          domain.OrderTypeMarket,
		Quantity:      qty,
		ClientOrderID: "atr-" + uuid.New().String(),
	}
	if !s.config.UseMarketEntry {
		entryReq.Type = domain.OrderTypeLimit
		entryReq.Price = price
		entryReq.TimeInForce = "GTC"
	}

	var entry *domain.Order
	// The uuid client order id makes a repeated submit idempotent on
	// the exchange side, so the entry is safe to retry.
	if err := withRetry(ctx, s.logger, s.retry, "submit entry", func(ctx context.Context) error {
		var err error
		entry, err = s.exchange.PlaceOrder(ctx, entryReq)
		return err
	}); err != nil {
		return err
	}

	if err := s.awaitFill(ctx, symbol, entry.OrderID); err != nil {
		return err
	}

	opposite := side.Opposite()

	tpReq := &domain.OrderRequest{
		Symbol:        symbol,
		Side:          opposite,
		Type:          domain.OrderTypeTakeProfitMarket,
		StopPrice:     tp,
		ReduceOnly:    true,
		ClosePosition: true,
	}
	if !s.config.UseMarketTP {
		// A limit take-profit needs an explicit quantity; reduce-only
		// keeps it from ever opening a reverse position.
		tpReq = &domain.OrderRequest{
			Symbol:      symbol,
			Side:        opposite,
			Type:        domain.OrderTypeLimit,
			Price:       tp,
			Quantity:    qty,
			ReduceOnly:  true,
			TimeInForce: "GTC",
		}
	}

	var tpOrder *domain.Order
	if err := withRetry(ctx, s.logger, s.retry, "submit take-profit", func(ctx context.Context) error {
		var err error
		tpOrder, err = s.exchange.PlaceOrder(ctx, tpReq)
		return err
	}); err != nil {
		return err
	}

	if s.reconciler != nil {
		s.reconciler.RegisterTakeProfit(symbol, tpOrder.OrderID)
	}

	var slOrder *domain.Order
	if err := withRetry(ctx, s.logger, s.retry, "submit stop-loss", func(ctx context.Context) error {
		var err error
		slOrder, err = s.exchange.PlaceOrder(ctx, &domain.OrderRequest{
			Symbol:        symbol,
			Side:          opposite,
			Type:          domain.OrderTypeStopMarket,
			StopPrice:     sl,
			ReduceOnly:    true,
			ClosePosition: true,
			TimeInForce:   "GTC",
		})
		return err
	}); err != nil {
		return err
	}

	if s.config.UseTrailingStop && s.guards != nil {
		s.guards.Watch(symbol, side, price, atr, qty, slOrder.OrderID)
	}

	return nil
}

// awaitFill polls the entry order until it reports FILLED, bounded to
// fillPollAttempts. An unfilled entry aborts the trade; the order may
// still be live on the exchange and is not cancelled here.
func (s *OrderService) awaitFill(ctx context.Context, symbol string, orderID int64) error {
	for i := 0; i < s.fillPollAttempts; i++ {
		order, err := s.exchange.GetOrder(ctx, symbol, orderID)
		if err == nil && order.Status == domain.OrderStatusFilled {
			return nil
		}
		if err != nil {
			s.logger.Warn("Entry status check failed",
				zap.String("symbol", symbol),
				zap.Int64("order_id", orderID),
				zap.Error(err))
		}
		if i < s.fillPollAttempts-1 {
			timer := time.NewTimer(s.fillPollInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			timer.Stop()
		}
	}
	return fmt.Errorf("entry order %d not filled after %d checks", orderID, s.fillPollAttempts)
}

// journal records the outcome to the trade log. Fire-and-forget: a
// storage fault never fails the trade.
func (s *OrderService) journal(symbol string, side domain.Side, qty, entry, tp, sl float64, status string) {
	if s.trades == nil {
		return
	}
	rec := &domain.TradeRecord{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: entry,
		TakeProfit: tp,
		StopLoss:   sl,
		Status:     status,
		CreatedAt:  time.Now(),
	}
	if err := s.trades.RecordTrade(context.Background(), rec); err != nil {
		s.logger.Warn("Trade journal write failed",
			zap.String("symbol", symbol),
			zap.Error(err))
	}
}
