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

func journalRow(symbol string, side domain.Side, entry, tp, sl float64, status string, at time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		Symbol:     symbol,
		Side:       side,
		Quantity:   1,
		EntryPrice: entry,
		TakeProfit: tp,
		StopLoss:   sl,
		Status:     status,
		CreatedAt:  at,
	}
}

func TestTradeReport_AggregatesPerSymbol(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeTradeRepo{Records: []*domain.TradeRecord{
		journalRow("ETHUSDT", domain.SideBuy, 3000, 3075, 2950, "FILLED", base),
		journalRow("ETHUSDT", domain.SideSell, 3100, 3025, 3150, "FILLED", base.Add(time.Hour)),
		journalRow("ETHUSDT", domain.SideBuy, 3050, 3125, 3000, "ERROR: entry rejected", base.Add(2*time.Hour)),
		journalRow("BTCUSDT", domain.SideBuy, 60000, 61500, 59000, "FILLED", base),
	}}
	s := NewTradeReportService(repo, zap.NewNop())

	reports, err := s.Summarize(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	eth := reports[0]
	assert.Equal(t, "ETHUSDT", eth.Symbol)
	assert.Equal(t, 3, eth.Total)
	assert.Equal(t, 2, eth.Filled)
	assert.Equal(t, 1, eth.Errors)
	assert.Equal(t, 2, eth.Longs)
	assert.Equal(t, 1, eth.Shorts)
	assert.InDelta(t, 1.5, eth.AvgRiskReward, 1e-9)
	assert.Equal(t, base.Add(2*time.Hour), eth.LastTrade)

	btc := reports[1]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.Equal(t, 1, btc.Filled)
	assert.InDelta(t, 1.5, btc.AvgRiskReward, 1e-9)
}

func TestTradeReport_EmptyJournal(t *testing.T) {
	s := NewTradeReportService(&fakeTradeRepo{}, zap.NewNop())

	reports, err := s.Summarize(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, reports)
}
