package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vitos/futures_atr_bot/internal/domain"
	"github.com/vitos/futures_atr_bot/internal/infrastructure/exchange"
	"github.com/vitos/futures_atr_bot/internal/infrastructure/logger"
	"github.com/vitos/futures_atr_bot/internal/infrastructure/storage"
	"github.com/vitos/futures_atr_bot/internal/metrics"
	"github.com/vitos/futures_atr_bot/internal/usecase"
)

type Config struct {
	Testnet   bool                    `yaml:"testnet"`
	Trading   usecase.TradingConfig   `yaml:"trading"`
	Strategy  usecase.StrategyConfig  `yaml:"strategy"`
	StopGuard usecase.StopGuardConfig `yaml:"stop_guard"`
	Logging   struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Metrics struct {
		Port int `yaml:"port"`
	} `yaml:"metrics"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config + Credentials
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		fmt.Println("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "bot.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange (Binance USD-M futures)
	binanceAdapter := exchange.NewBinanceAdapter(apiKey, apiSecret, cfg.Testnet, log)
	defer binanceAdapter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Init Services
	reconciler := usecase.NewReconciler(binanceAdapter, log)
	guards := usecase.NewStopGuardService(binanceAdapter, cfg.StopGuard, log)
	orders := usecase.NewOrderService(binanceAdapter, store, reconciler, guards, cfg.Trading, log)
	strategy := usecase.NewStrategyService(binanceAdapter, orders, cfg.Strategy, log)

	// 6. Seed indicators from REST history
	if err := strategy.Bootstrap(ctx); err != nil {
		log.Fatal("Failed to bootstrap indicators", zap.Error(err))
	}

	// 7. Connect streams
	binanceAdapter.OnOrderUpdate(reconciler.HandleOrderUpdate)
	binanceAdapter.OnKline(func(k domain.Kline) {
		strategy.HandleKline(ctx, k)
	})

	if err := binanceAdapter.StartUserStream(ctx); err != nil {
		log.Fatal("Failed to start user stream", zap.Error(err))
	}
	if err := binanceAdapter.SubscribeKlines(cfg.Strategy.ActiveSymbols(), []string{"15m", "1h"}); err != nil {
		log.Fatal("Failed to subscribe klines", zap.Error(err))
	}

	log.Info("Bot started",
		zap.Strings("symbols", cfg.Strategy.ActiveSymbols()),
		zap.Bool("testnet", cfg.Testnet))

	// 8. Metrics endpoint
	if cfg.Metrics.Port > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	guards.StopAll()
}
