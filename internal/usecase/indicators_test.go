package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/futures_atr_bot/internal/domain"
)

func testIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{EMAFast: 2, EMASlow: 3, ATRPeriod: 3, DonchianPeriod: 5}
}

func bar15m(high, low, close float64) domain.Kline {
	return domain.Kline{Symbol: "BTCUSDT", Interval: "15m", High: high, Low: low, Close: close, Closed: true}
}

func close1h(close float64) domain.Kline {
	return domain.Kline{Symbol: "BTCUSDT", Interval: "1h", Close: close, Closed: true}
}

func TestIndicatorSet_InsufficientHistory(t *testing.T) {
	s := NewIndicatorSet("BTCUSDT", testIndicatorConfig())

	_, ok := s.EMA(3)
	assert.False(t, ok)
	_, ok = s.ATR()
	assert.False(t, ok)
	_, _, ok = s.Donchian()
	assert.False(t, ok)

	s.Update(close1h(100))
	s.Update(close1h(101))
	_, ok = s.EMA(3)
	assert.False(t, ok, "needs three 1h closes")
	s.Update(close1h(102))
	_, ok = s.EMA(3)
	assert.True(t, ok)
}

func TestIndicatorSet_ATR(t *testing.T) {
	s := NewIndicatorSet("BTCUSDT", testIndicatorConfig())
	// True ranges against previous closes: 12, 11, 8.
	s.Update(bar15m(105, 100, 102))
	s.Update(bar15m(110, 98, 104))
	s.Update(bar15m(112, 101, 108))
	s.Update(bar15m(111, 103, 105))

	atr, ok := s.ATR()
	require.True(t, ok)
	assert.InDelta(t, 31.0/3.0, atr, 1e-9)
}

func TestIndicatorSet_Donchian(t *testing.T) {
	s := NewIndicatorSet("BTCUSDT", testIndicatorConfig())
	s.Update(bar15m(105, 100, 102))
	s.Update(bar15m(110, 98, 104))
	s.Update(bar15m(112, 101, 108))

	high, low, ok := s.Donchian()
	require.True(t, ok)
	assert.Equal(t, 112.0, high)
	assert.Equal(t, 98.0, low)
}

func TestIndicatorSet_DonchianWindowSlides(t *testing.T) {
	cfg := testIndicatorConfig()
	s := NewIndicatorSet("BTCUSDT", cfg)
	// Overfill past the Donchian period; the early extreme must fall out.
	s.Update(bar15m(500, 1, 250))
	for i := 0; i < cfg.DonchianPeriod; i++ {
		s.Update(bar15m(110, 90, 100))
	}

	high, low, ok := s.Donchian()
	require.True(t, ok)
	assert.Equal(t, 110.0, high)
	assert.Equal(t, 90.0, low)
}

func TestIndicatorSet_EMATracksRecentCloses(t *testing.T) {
	s := NewIndicatorSet("BTCUSDT", testIndicatorConfig())
	s.Update(close1h(100))
	s.Update(close1h(100))
	s.Update(close1h(100))

	flat, ok := s.EMA(3)
	require.True(t, ok)
	assert.InDelta(t, 100.0, flat, 1e-9, "constant series yields the constant")

	s.Update(close1h(110))
	rising, ok := s.EMA(3)
	require.True(t, ok)
	assert.Greater(t, rising, flat)
	assert.Less(t, rising, 110.0, "weighted mean stays below the newest close")
}
