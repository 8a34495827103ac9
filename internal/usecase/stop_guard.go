package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/futures_atr_bot/internal/domain"
	"github.com/vitos/futures_atr_bot/internal/metrics"
	"go.uber.org/zap"
)

// GuardState is the lifecycle stage of one trade's protective stop.
type GuardState string

const (
	// GuardArmed holds the fixed stop-loss placed by the pipeline.
	GuardArmed GuardState = "armed"
	// GuardBreakEven holds a stop moved to the entry price.
	GuardBreakEven GuardState = "break_even"
	// GuardTrailing is terminal: the trailing order is live and the
	// exchange manages it from here.
	GuardTrailing GuardState = "trailing"
	// GuardFailed is terminal: a cancel or place call failed and the
	// monitor gave up. The position keeps whatever order was last
	// successfully placed, or none if the failure hit mid-replacement.
	GuardFailed GuardState = "failed"
)

type StopGuardConfig struct {
	BreakEvenMultiplier float64       `yaml:"break_even_multiplier"` // activation at entry ± ATR * m
	TrailingMultiplier  float64       `yaml:"trailing_multiplier"`   // activation at entry ± ATR * m
	TrailingCallback    float64       `yaml:"trailing_callback"`     // percent distance, e.g. 0.5
	PollInterval        time.Duration `yaml:"poll_interval"`
}

// StopGuardService owns one StopGuard goroutine per open trade and can
// tear them all down on shutdown.
type StopGuardService struct {
	exchange domain.Exchange
	config   StopGuardConfig
	logger   *zap.Logger

	mu     sync.Mutex
	guards map[string]*StopGuard
}

func NewStopGuardService(exchange domain.Exchange, config StopGuardConfig, logger *zap.Logger) *StopGuardService {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &StopGuardService{
		exchange: exchange,
		config:   config,
		logger:   logger,
		guards:   make(map[string]*StopGuard),
	}
}

// Watch starts monitoring a freshly opened trade. stopOrderID is the
// fixed stop-loss the pipeline just placed and qty the position size
// the eventual trailing order must cover. An existing guard for the
// symbol is cancelled first; the position-exists guard upstream makes
// that a dead branch in practice.
func (s *StopGuardService) Watch(symbol string, side domain.Side, entryPrice, atr, qty float64, stopOrderID int64) *StopGuard {
	s.mu.Lock()
	if old, exists := s.guards[symbol]; exists {
		old.cancel()
	}

	g := &StopGuard{
		exchange:    s.exchange,
		config:      s.config,
		logger:      s.logger,
		symbol:      symbol,
		side:        side,
		entryPrice:  entryPrice,
		atr:         atr,
		qty:         qty,
		stopOrderID: stopOrderID,
		state:       GuardArmed,
		done:        make(chan struct{}),
	}
	if side == domain.SideBuy {
		g.breakEvenPrice = entryPrice + atr*s.config.BreakEvenMultiplier
		g.trailingPrice = entryPrice + atr*s.config.TrailingMultiplier
	} else {
		g.breakEvenPrice = entryPrice - atr*s.config.BreakEvenMultiplier
		g.trailingPrice = entryPrice - atr*s.config.TrailingMultiplier
	}
	s.guards[symbol] = g
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	metrics.ActiveStopGuards.Inc()
	go func() {
		defer s.remove(symbol, g)
		g.run(ctx)
	}()

	s.logger.Info("Stop guard started",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", entryPrice),
		zap.Float64("break_even_activation", g.breakEvenPrice),
		zap.Float64("trailing_activation", g.trailingPrice))
	return g
}

// Stop cancels the guard for one symbol, e.g. when the position was
// closed externally.
func (s *StopGuardService) Stop(symbol string) {
	s.mu.Lock()
	g, ok := s.guards[symbol]
	s.mu.Unlock()
	if ok {
		g.cancel()
	}
}

// StopAll cancels every running guard and waits for them to exit.
func (s *StopGuardService) StopAll() {
	s.mu.Lock()
	guards := make([]*StopGuard, 0, len(s.guards))
	for _, g := range s.guards {
		guards = append(guards, g)
	}
	s.mu.Unlock()

	for _, g := range guards {
		g.cancel()
		<-g.done
	}
}

func (s *StopGuardService) remove(symbol string, g *StopGuard) {
	s.mu.Lock()
	if s.guards[symbol] == g {
		delete(s.guards, symbol)
	}
	s.mu.Unlock()
	metrics.ActiveStopGuards.Dec()
}

// StopGuard escalates one trade's protection as price moves in its
// favour: fixed stop -> stop at entry (break-even) -> trailing stop.
// Once the trailing order is live the exchange adjusts it on its own
// and the guard exits.
type StopGuard struct {
	exchange domain.Exchange
	config   StopGuardConfig
	logger   *zap.Logger

	symbol         string
	side           domain.Side
	entryPrice     float64
	atr            float64
	qty            float64
	breakEvenPrice float64
	trailingPrice  float64

	mu          sync.Mutex
	state       GuardState
	stopOrderID int64

	cancel context.CancelFunc
	done   chan struct{}
}

// State returns the guard's current lifecycle stage.
func (g *StopGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Done is closed when the monitor goroutine has exited.
func (g *StopGuard) Done() <-chan struct{} { return g.done }

func (g *StopGuard) run(ctx context.Context) {
	defer close(g.done)

	ticker := time.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("Stop guard cancelled", zap.String("symbol", g.symbol))
			return
		case <-ticker.C:
			if g.step(ctx) {
				return
			}
		}
	}
}

// step performs one price poll and at most one transition. It returns
// true when the guard reached a terminal state.
func (g *StopGuard) step(ctx context.Context) bool {
	price, err := g.exchange.GetMarkPrice(ctx, g.symbol)
	if err != nil {
		// Price polling never kills the guard; try again next tick.
		g.logger.Warn("Mark price fetch failed",
			zap.String("symbol", g.symbol),
			zap.Error(err))
		return false
	}

	if g.State() == GuardArmed && g.crossed(price, g.breakEvenPrice) {
		return g.moveToBreakEven(ctx)
	}
	if g.crossed(price, g.trailingPrice) {
		return g.switchToTrailing(ctx, price)
	}
	return false
}

func (g *StopGuard) crossed(price, threshold float64) bool {
	if g.side == domain.SideBuy {
		return price >= threshold
	}
	return price <= threshold
}

// moveToBreakEven replaces the current stop with one at the entry
// price, locking in a no-loss exit. Returns true only on failure
// (terminal); on success the guard keeps polling for the trailing
// threshold.
func (g *StopGuard) moveToBreakEven(ctx context.Context) bool {
	g.mu.Lock()
	stopID := g.stopOrderID
	g.mu.Unlock()

	if err := g.exchange.CancelOrder(ctx, g.symbol, stopID); err != nil {
		g.fail("cancel stop before break-even", err)
		return true
	}

	order, err := g.exchange.PlaceOrder(ctx, &domain.OrderRequest{
		Symbol:        g.symbol,
		Side:          g.side.Opposite(),
		Type:          domain.OrderTypeStopMarket,
		StopPrice:     g.entryPrice,
		ReduceOnly:    true,
		ClosePosition: true,
		TimeInForce:   "GTC",
	})
	if err != nil {
		// The old stop is already gone: the position is unprotected
		// until an operator steps in.
		g.fail("place break-even stop", err)
		return true
	}

	g.mu.Lock()
	g.stopOrderID = order.OrderID
	g.state = GuardBreakEven
	g.mu.Unlock()

	metrics.StopUpgrades.WithLabelValues("break_even").Inc()
	g.logger.Info("Moved stop to break-even",
		zap.String("symbol", g.symbol),
		zap.Float64("stop_price", g.entryPrice),
		zap.Int64("order_id", order.OrderID))
	return false
}

// switchToTrailing cancels the current stop and arms the trailing
// order. Terminal either way.
func (g *StopGuard) switchToTrailing(ctx context.Context, price float64) bool {
	g.mu.Lock()
	stopID := g.stopOrderID
	g.mu.Unlock()

	if err := g.exchange.CancelOrder(ctx, g.symbol, stopID); err != nil {
		g.fail("cancel stop before trailing", err)
		return true
	}

	// Trailing orders cannot use closePosition, so the quantity captured
	// at entry covers the whole position.
	_, err := g.exchange.PlaceOrder(ctx, &domain.OrderRequest{
		Symbol:          g.symbol,
		Side:            g.side.Opposite(),
		Type:            domain.OrderTypeTrailingStopMarket,
		Quantity:        g.qty,
		ActivationPrice: g.trailingPrice,
		CallbackRate:    g.config.TrailingCallback,
		ReduceOnly:      true,
	})
	if err != nil {
		g.fail("place trailing stop", err)
		return true
	}

	g.mu.Lock()
	g.state = GuardTrailing
	g.mu.Unlock()

	metrics.StopUpgrades.WithLabelValues("trailing").Inc()
	g.logger.Info("Switched to trailing stop",
		zap.String("symbol", g.symbol),
		zap.Float64("mark_price", price),
		zap.Float64("activation_price", g.trailingPrice),
		zap.Float64("callback_rate", g.config.TrailingCallback))
	return true
}

func (g *StopGuard) fail(op string, err error) {
	g.mu.Lock()
	g.state = GuardFailed
	g.mu.Unlock()
	g.logger.Error("Stop guard terminated",
		zap.String("symbol", g.symbol),
		zap.String("op", op),
		zap.Error(err))
}
