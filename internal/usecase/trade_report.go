package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/futures_atr_bot/internal/domain"
)

// TradeReport aggregates the journal rows of one symbol.
type TradeReport struct {
	Symbol        string
	Total         int
	Filled        int
	Errors        int
	Longs         int
	Shorts        int
	AvgRiskReward float64 // mean |tp-entry| / |entry-sl| over filled rows
	LastTrade     time.Time
}

type TradeReportService struct {
	trades domain.TradeRepository
	logger *zap.Logger
}

func NewTradeReportService(trades domain.TradeRepository, logger *zap.Logger) *TradeReportService {
	return &TradeReportService{
		trades: trades,
		logger: logger,
	}
}

// Summarize reads up to limit journal rows and aggregates them per
// symbol, most active symbols first.
func (s *TradeReportService) Summarize(ctx context.Context, limit int) ([]TradeReport, error) {
	rows, err := s.trades.ListTrades(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("error reading trade journal: %w", err)
	}

	bySymbol := make(map[string]*TradeReport)
	rrSums := make(map[string]float64)

	for _, t := range rows {
		r, ok := bySymbol[t.Symbol]
		if !ok {
			r = &TradeReport{Symbol: t.Symbol}
			bySymbol[t.Symbol] = r
		}

		r.Total++
		if t.Side == domain.SideBuy {
			r.Longs++
		} else {
			r.Shorts++
		}
		if t.CreatedAt.After(r.LastTrade) {
			r.LastTrade = t.CreatedAt
		}

		switch {
		case t.Status == "FILLED":
			r.Filled++
			risk := math.Abs(t.EntryPrice - t.StopLoss)
			if risk > 0 {
				rrSums[t.Symbol] += math.Abs(t.TakeProfit-t.EntryPrice) / risk
			}
		case strings.HasPrefix(t.Status, "ERROR"):
			r.Errors++
		}
	}

	results := make([]TradeReport, 0, len(bySymbol))
	for symbol, r := range bySymbol {
		if r.Filled > 0 {
			r.AvgRiskReward = rrSums[symbol] / float64(r.Filled)
		}
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Total != results[j].Total {
			return results[i].Total > results[j].Total
		}
		return results[i].Symbol < results[j].Symbol
	})

	return results, nil
}
