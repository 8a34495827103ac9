package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/futures_atr_bot/internal/domain"
	"go.uber.org/zap"
)

func testGuardConfig() StopGuardConfig {
	return StopGuardConfig{
		BreakEvenMultiplier: 0.5,
		TrailingMultiplier:  1.0,
		TrailingCallback:    0.5,
		PollInterval:        time.Hour,
	}
}

// newTestGuard builds a guard without the service's goroutine so tests
// can drive polls one step at a time.
func newTestGuard(ex *fakeExchange, side domain.Side, entry, atr float64, stopOrderID int64) *StopGuard {
	cfg := testGuardConfig()
	g := &StopGuard{
		exchange:    ex,
		config:      cfg,
		logger:      zap.NewNop(),
		symbol:      "BTCUSDT",
		side:        side,
		entryPrice:  entry,
		atr:         atr,
		qty:         2.0,
		stopOrderID: stopOrderID,
		state:       GuardArmed,
		done:        make(chan struct{}),
	}
	if side == domain.SideBuy {
		g.breakEvenPrice = entry + atr*cfg.BreakEvenMultiplier
		g.trailingPrice = entry + atr*cfg.TrailingMultiplier
	} else {
		g.breakEvenPrice = entry - atr*cfg.BreakEvenMultiplier
		g.trailingPrice = entry - atr*cfg.TrailingMultiplier
	}
	return g
}

func TestStopGuard_LongEscalationSequence(t *testing.T) {
	ex := &fakeExchange{}
	g := newTestGuard(ex, domain.SideBuy, 100.0, 10.0, 7)
	ctx := context.Background()

	// Thresholds: break-even at 105, trailing at 110.
	ex.SetMarkPrice(100)
	assert.False(t, g.step(ctx))
	assert.Equal(t, GuardArmed, g.State())

	ex.SetMarkPrice(104)
	assert.False(t, g.step(ctx))
	assert.Equal(t, GuardArmed, g.State())
	assert.Empty(t, ex.Placed)

	ex.SetMarkPrice(106)
	assert.False(t, g.step(ctx), "break-even is not terminal")
	assert.Equal(t, GuardBreakEven, g.State())

	stops := ex.placedOfType(domain.OrderTypeStopMarket)
	require.Len(t, stops, 1, "exactly one break-even stop")
	assert.InDelta(t, 100.0, stops[0].StopPrice, 1e-9)
	assert.Equal(t, domain.SideSell, stops[0].Side)
	assert.True(t, stops[0].ClosePosition)
	assert.Equal(t, []int64{7}, ex.Cancelled)

	ex.SetMarkPrice(112)
	assert.True(t, g.step(ctx), "trailing switch is terminal")
	assert.Equal(t, GuardTrailing, g.State())

	trailing := ex.placedOfType(domain.OrderTypeTrailingStopMarket)
	require.Len(t, trailing, 1, "exactly one trailing order")
	assert.InDelta(t, 110.0, trailing[0].ActivationPrice, 1e-9)
	assert.InDelta(t, 0.5, trailing[0].CallbackRate, 1e-9)
	assert.Equal(t, domain.SideSell, trailing[0].Side)
	assert.InDelta(t, 2.0, trailing[0].Quantity, 1e-9, "trailing orders carry the position size")
	assert.True(t, trailing[0].ReduceOnly)
	assert.False(t, trailing[0].ClosePosition)

	// The break-even stop (id 1) was cancelled before trailing.
	assert.Equal(t, []int64{7, 1}, ex.Cancelled)
}

func TestStopGuard_ShortThresholdsMirror(t *testing.T) {
	ex := &fakeExchange{}
	g := newTestGuard(ex, domain.SideSell, 3000.0, 50.0, 9)
	ctx := context.Background()

	// Break-even at 2975, trailing at 2950; price rising is unfavorable.
	ex.SetMarkPrice(3010)
	assert.False(t, g.step(ctx))
	assert.Equal(t, GuardArmed, g.State())

	ex.SetMarkPrice(2974)
	assert.False(t, g.step(ctx))
	assert.Equal(t, GuardBreakEven, g.State())
	stops := ex.placedOfType(domain.OrderTypeStopMarket)
	require.Len(t, stops, 1)
	assert.InDelta(t, 3000.0, stops[0].StopPrice, 1e-9)
	assert.Equal(t, domain.SideBuy, stops[0].Side)

	ex.SetMarkPrice(2940)
	assert.True(t, g.step(ctx))
	assert.Equal(t, GuardTrailing, g.State())
	trailing := ex.placedOfType(domain.OrderTypeTrailingStopMarket)
	require.Len(t, trailing, 1)
	assert.InDelta(t, 2950.0, trailing[0].ActivationPrice, 1e-9)
}

func TestStopGuard_PriceErrorsRetryForever(t *testing.T) {
	ex := &fakeExchange{MarkPriceErr: errBoom}
	g := newTestGuard(ex, domain.SideBuy, 100.0, 10.0, 7)

	for i := 0; i < 10; i++ {
		assert.False(t, g.step(context.Background()))
	}
	assert.Equal(t, GuardArmed, g.State())
	assert.Empty(t, ex.Placed)
}

func TestStopGuard_CancelFailureIsTerminal(t *testing.T) {
	ex := &fakeExchange{CancelErr: errBoom}
	g := newTestGuard(ex, domain.SideBuy, 100.0, 10.0, 7)

	ex.SetMarkPrice(106)
	assert.True(t, g.step(context.Background()))
	assert.Equal(t, GuardFailed, g.State())
	assert.Empty(t, ex.Placed, "no replacement stop after a failed cancel")
}

func TestStopGuard_PlaceFailureIsTerminal(t *testing.T) {
	ex := &fakeExchange{
		PlaceErrFor: map[domain.OrderType]error{domain.OrderTypeStopMarket: errBoom},
	}
	g := newTestGuard(ex, domain.SideBuy, 100.0, 10.0, 7)

	ex.SetMarkPrice(106)
	assert.True(t, g.step(context.Background()))
	assert.Equal(t, GuardFailed, g.State())
	// The original stop is gone and nothing replaced it.
	assert.Equal(t, []int64{7}, ex.Cancelled)
}

func TestStopGuardService_WatchAndStopAll(t *testing.T) {
	ex := &fakeExchange{MarkPrice: 100.0}
	cfg := testGuardConfig()
	cfg.PollInterval = time.Millisecond
	svc := NewStopGuardService(ex, cfg, zap.NewNop())

	g := svc.Watch("BTCUSDT", domain.SideBuy, 100.0, 10.0, 2.0, 7)
	require.NotNil(t, g)

	svc.StopAll()
	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("guard did not exit after StopAll")
	}

	svc.mu.Lock()
	assert.Empty(t, svc.guards)
	svc.mu.Unlock()
}

func TestStopGuardService_GuardExitsAfterTrailing(t *testing.T) {
	ex := &fakeExchange{MarkPrice: 120.0} // already past both thresholds
	cfg := testGuardConfig()
	cfg.PollInterval = time.Millisecond
	svc := NewStopGuardService(ex, cfg, zap.NewNop())

	g := svc.Watch("BTCUSDT", domain.SideBuy, 100.0, 10.0, 2.0, 7)
	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("guard did not terminate")
	}

	// Break-even first, trailing on the following poll.
	assert.Equal(t, GuardTrailing, g.State())
	assert.Len(t, ex.placedOfType(domain.OrderTypeStopMarket), 1)
	assert.Len(t, ex.placedOfType(domain.OrderTypeTrailingStopMarket), 1)
}
