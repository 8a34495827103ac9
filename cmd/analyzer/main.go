package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/vitos/futures_atr_bot/internal/infrastructure/storage"
	"github.com/vitos/futures_atr_bot/internal/usecase"
)

func main() {
	dbPath := flag.String("db", "bot.db", "path to the trade journal database")
	limit := flag.Int("limit", 500, "max journal rows to analyze")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := usecase.NewTradeReportService(store, zap.NewNop())
	reports, err := svc.Summarize(context.Background(), *limit)
	if err != nil {
		fmt.Printf("Error summarizing trades: %v\n", err)
		os.Exit(1)
	}

	if len(reports) == 0 {
		fmt.Println("No trades recorded.")
		return
	}

	fmt.Printf("Analyzing journal: %s\n\n", *dbPath)
	fmt.Printf("%-12s %6s %7s %7s %6s %7s %8s  %s\n",
		"SYMBOL", "TOTAL", "FILLED", "ERRORS", "LONGS", "SHORTS", "AVG R:R", "LAST TRADE")

	for _, r := range reports {
		last := "-"
		if !r.LastTrade.IsZero() {
			last = r.LastTrade.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-12s %6d %7d %7d %6d %7d %8.2f  %s\n",
			r.Symbol, r.Total, r.Filled, r.Errors, r.Longs, r.Shorts, r.AvgRiskReward, last)
	}
}
