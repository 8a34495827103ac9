package usecase

import (
	"math"

	"github.com/vitos/futures_atr_bot/internal/domain"
)

type IndicatorConfig struct {
	EMAFast        int `yaml:"ema_fast"`
	EMASlow        int `yaml:"ema_slow"`
	ATRPeriod      int `yaml:"atr_period"`
	DonchianPeriod int `yaml:"donchian_period"`
}

type bar struct {
	high, low, closePrice float64
}

// IndicatorSet keeps the bounded market history one symbol needs for
// signal evaluation: 15m bars for ATR and the Donchian channel, 1h
// closes for the EMAs.
type IndicatorSet struct {
	symbol   string
	config   IndicatorConfig
	bars15m  []bar
	closes1h []float64
}

func NewIndicatorSet(symbol string, config IndicatorConfig) *IndicatorSet {
	return &IndicatorSet{symbol: symbol, config: config}
}

// Update folds one closed kline into the history. 15m bars feed ATR
// and Donchian, anything else is treated as the 1h close series.
func (s *IndicatorSet) Update(k domain.Kline) {
	if k.Interval == "15m" {
		s.bars15m = append(s.bars15m, bar{high: k.High, low: k.Low, closePrice: k.Close})
		if len(s.bars15m) > s.config.DonchianPeriod {
			s.bars15m = s.bars15m[len(s.bars15m)-s.config.DonchianPeriod:]
		}
		return
	}
	s.closes1h = append(s.closes1h, k.Close)
	if len(s.closes1h) > s.config.EMASlow {
		s.closes1h = s.closes1h[len(s.closes1h)-s.config.EMASlow:]
	}
}

// EMA returns an exponentially weighted mean of the last period 1h
// closes. ok is false until enough history has accumulated.
func (s *IndicatorSet) EMA(period int) (ema float64, ok bool) {
	if period <= 0 || len(s.closes1h) < period {
		return 0, false
	}

	weights := make([]float64, period)
	var sum float64
	for i := range weights {
		x := -1.0
		if period > 1 {
			x = -1.0 + float64(i)/float64(period-1)
		}
		weights[i] = math.Exp(x)
		sum += weights[i]
	}

	window := s.closes1h[len(s.closes1h)-period:]
	var out float64
	for i, c := range window {
		out += c * weights[i] / sum
	}
	return out, true
}

// ATR returns the mean true range over the configured period of 15m
// bars.
func (s *IndicatorSet) ATR() (atr float64, ok bool) {
	if len(s.bars15m) < s.config.ATRPeriod+1 {
		return 0, false
	}

	var trs []float64
	for i := 1; i < len(s.bars15m); i++ {
		cur, prev := s.bars15m[i], s.bars15m[i-1]
		tr := math.Max(cur.high-cur.low,
			math.Max(math.Abs(cur.high-prev.closePrice), math.Abs(cur.low-prev.closePrice)))
		trs = append(trs, tr)
	}

	window := trs[len(trs)-s.config.ATRPeriod:]
	var sum float64
	for _, tr := range window {
		sum += tr
	}
	return sum / float64(len(window)), true
}

// Donchian returns the channel bounds over the buffered 15m bars.
func (s *IndicatorSet) Donchian() (high, low float64, ok bool) {
	if len(s.bars15m) == 0 {
		return 0, 0, false
	}
	high = s.bars15m[0].high
	low = s.bars15m[0].low
	for _, b := range s.bars15m[1:] {
		high = math.Max(high, b.high)
		low = math.Min(low, b.low)
	}
	return high, low, true
}
