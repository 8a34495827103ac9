package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitos/futures_atr_bot/internal/domain"
	"go.uber.org/zap"
)

type StrategyConfig struct {
	Symbols    []string        `yaml:"symbols"`
	Excluded   []string        `yaml:"excluded_symbols"`
	Indicators IndicatorConfig `yaml:"indicators"`
}

// ActiveSymbols returns the configured symbols minus the exclusions.
func (c StrategyConfig) ActiveSymbols() []string {
	excluded := make(map[string]bool, len(c.Excluded))
	for _, s := range c.Excluded {
		excluded[s] = true
	}
	var out []string
	for _, s := range c.Symbols {
		if !excluded[s] {
			out = append(out, s)
		}
	}
	return out
}

type emaPair struct {
	fast, slow float64
	ok         bool
}

// StrategyService turns closed klines into trade entries: an EMA
// crossover on the 1h series or a Donchian channel breakout on the 15m
// series hands a signal to the order pipeline.
type StrategyService struct {
	exchange domain.Exchange
	orders   *OrderService
	config   StrategyConfig
	logger   *zap.Logger

	mu       sync.Mutex
	watchers map[string]*IndicatorSet
	lastEMA  map[string]emaPair
}

func NewStrategyService(exchange domain.Exchange, orders *OrderService, config StrategyConfig, logger *zap.Logger) *StrategyService {
	watchers := make(map[string]*IndicatorSet)
	lastEMA := make(map[string]emaPair)
	for _, s := range config.ActiveSymbols() {
		watchers[s] = NewIndicatorSet(s, config.Indicators)
		lastEMA[s] = emaPair{}
	}
	return &StrategyService{
		exchange: exchange,
		orders:   orders,
		config:   config,
		logger:   logger,
		watchers: watchers,
		lastEMA:  lastEMA,
	}
}

// Bootstrap seeds every symbol's indicators from recent REST klines so
// the bot can trade without waiting hours of stream history.
func (s *StrategyService) Bootstrap(ctx context.Context) error {
	ind := s.config.Indicators
	limit := max(ind.EMASlow, ind.EMAFast, ind.ATRPeriod, ind.DonchianPeriod) + 1

	for _, symbol := range s.config.ActiveSymbols() {
		for _, interval := range []string{"15m", "1h"} {
			candles, err := s.exchange.GetCandles(ctx, symbol, interval, limit)
			if err != nil {
				return fmt.Errorf("bootstrap klines for %s %s: %w", symbol, interval, err)
			}
			for _, c := range candles {
				s.HandleKline(ctx, domain.Kline{
					Symbol:   symbol,
					Interval: interval,
					High:     c.High,
					Low:      c.Low,
					Close:    c.Close,
					Closed:   true,
				})
			}
		}
	}
	return nil
}

// HandleKline evaluates one streamed kline. Only closed bars count.
// The Donchian channel is read before the bar is folded in, otherwise
// the bar's own high would mask its breakout.
func (s *StrategyService) HandleKline(ctx context.Context, k domain.Kline) {
	s.mu.Lock()
	w, tracked := s.watchers[k.Symbol]
	s.mu.Unlock()
	if !tracked || !k.Closed {
		return
	}

	s.mu.Lock()
	donchianHigh, donchianLow, donchianOK := w.Donchian()
	w.Update(k)
	fast, fastOK := w.EMA(s.config.Indicators.EMAFast)
	slow, slowOK := w.EMA(s.config.Indicators.EMASlow)
	atr, atrOK := w.ATR()
	last := s.lastEMA[k.Symbol]
	if fastOK && slowOK {
		s.lastEMA[k.Symbol] = emaPair{fast: fast, slow: slow, ok: true}
	}
	s.mu.Unlock()

	if !atrOK || !fastOK || !slowOK {
		s.logger.Debug("Insufficient indicator history",
			zap.String("symbol", k.Symbol),
			zap.String("interval", k.Interval))
		return
	}

	s.logger.Info("Evaluating signal",
		zap.String("symbol", k.Symbol),
		zap.String("interval", k.Interval),
		zap.Float64("ema_fast", fast),
		zap.Float64("ema_slow", slow),
		zap.Float64("donchian_high", donchianHigh),
		zap.Float64("donchian_low", donchianLow),
		zap.Float64("atr", atr))

	// EMA crossover on the 1h series.
	if last.ok {
		if last.fast < last.slow && fast > slow {
			res := s.orders.PlaceTrade(ctx, k.Symbol, domain.SideBuy, k.Close, atr)
			s.logger.Info("EMA cross BUY", zap.String("symbol", k.Symbol), zap.Bool("placed", res))
		} else if last.fast > last.slow && fast < slow {
			res := s.orders.PlaceTrade(ctx, k.Symbol, domain.SideSell, k.Close, atr)
			s.logger.Info("EMA cross SELL", zap.String("symbol", k.Symbol), zap.Bool("placed", res))
		}
	}

	// Donchian breakout on the 15m series.
	if k.Interval == "15m" && donchianOK {
		if k.Close > donchianHigh {
			res := s.orders.PlaceTrade(ctx, k.Symbol, domain.SideBuy, k.Close, atr)
			s.logger.Info("Donchian breakout BUY", zap.String("symbol", k.Symbol), zap.Bool("placed", res))
		} else if k.Close < donchianLow {
			res := s.orders.PlaceTrade(ctx, k.Symbol, domain.SideSell, k.Close, atr)
			s.logger.Info("Donchian breakout SELL", zap.String("symbol", k.Symbol), zap.Bool("placed", res))
		}
	}
}
