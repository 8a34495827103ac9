package usecase

import (
	"context"
	"sync"

	"github.com/vitos/futures_atr_bot/internal/domain"
	"github.com/vitos/futures_atr_bot/internal/metrics"
	"go.uber.org/zap"
)

// Reconciler cleans up the take-profit leg once a trailing stop has
// closed the position. The exchange does not manage the two legs
// atomically, so after a trailing fill the original take-profit is
// still live and would open a fresh position in reverse if it ever
// triggered (reduce-only saves us from that, but the order still sits
// in the book and blocks margin).
//
// It tracks at most one take-profit order per symbol. The pipeline's
// duplicate-position guard keeps that invariant: a symbol can only
// carry one open trade at a time.
type Reconciler struct {
	exchange domain.Exchange
	logger   *zap.Logger

	mu       sync.Mutex
	tpOrders map[string]int64 // symbol -> take-profit order id
}

func NewReconciler(exchange domain.Exchange, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		exchange: exchange,
		logger:   logger,
		tpOrders: make(map[string]int64),
	}
}

// RegisterTakeProfit remembers the take-profit order protecting the
// symbol's open trade, replacing any previous registration.
func (r *Reconciler) RegisterTakeProfit(symbol string, orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tpOrders[symbol] = orderID
}

// Tracked reports the registered take-profit order for a symbol.
func (r *Reconciler) Tracked(symbol string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.tpOrders[symbol]
	return id, ok
}

// HandleOrderUpdate consumes one event from the user-data stream.
// Only a filled trailing stop is of interest; everything else is
// ignored. The cancel is best-effort: on failure the registration is
// dropped anyway so the map cannot leak stale entries.
func (r *Reconciler) HandleOrderUpdate(update domain.OrderUpdate) {
	if update.Type != domain.OrderTypeTrailingStopMarket || update.Status != domain.OrderStatusFilled {
		return
	}

	r.mu.Lock()
	tpID, ok := r.tpOrders[update.Symbol]
	if ok {
		delete(r.tpOrders, update.Symbol)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.exchange.CancelOrder(context.Background(), update.Symbol, tpID); err != nil {
		r.logger.Warn("Failed to cancel take-profit after trailing stop fill",
			zap.String("symbol", update.Symbol),
			zap.Int64("order_id", tpID),
			zap.Error(err))
		return
	}

	metrics.TakeProfitCleanups.Inc()
	r.logger.Info("Cancelled take-profit after trailing stop fill",
		zap.String("symbol", update.Symbol),
		zap.Int64("order_id", tpID))
}
