package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vitos/futures_atr_bot/internal/infrastructure/exchange"
)

func main() {
	_ = godotenv.Load()

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		fmt.Println("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
		os.Exit(1)
	}

	symbol := "BTCUSDT"
	if len(os.Args) > 1 {
		symbol = os.Args[1]
	}

	fmt.Printf("Testing Binance Futures Interaction...\n")
	fmt.Printf("API Key: %s...\n", apiKey[:4])

	adapter := exchange.NewBinanceAdapter(apiKey, apiSecret, os.Getenv("BINANCE_TESTNET") == "1", zap.NewNop())
	ctx := context.Background()

	// 1. Check Public Endpoint (Mark Price)
	price, err := adapter.GetMarkPrice(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get mark price: %v\n", err)
	} else {
		fmt.Printf("✅ Mark Price (%s): %f\n", symbol, price)
	}

	// 2. Check Public Endpoint (Klines)
	candles, err := adapter.GetCandles(ctx, symbol, "15m", 3)
	if err != nil {
		fmt.Printf("❌ Failed to get klines: %v\n", err)
	} else {
		fmt.Printf("✅ Klines (%s 15m): %d candles, last close %f\n", symbol, len(candles), candles[len(candles)-1].Close)
	}

	// 3. Check Private Endpoint (Position)
	pos, err := adapter.GetPosition(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get position: %v\n", err)
	} else if pos == nil {
		fmt.Printf("✅ Position (%s): flat\n", symbol)
	} else {
		fmt.Printf("✅ Position (%s): Amount=%f, Entry=%f, PnL=%f\n",
			symbol, pos.Amount, pos.EntryPrice, pos.UnrealizedPnL)
	}
}
