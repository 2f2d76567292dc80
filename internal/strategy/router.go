package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/youturn45/polymarket-tools/internal/bus"
	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/market"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
	"github.com/youturn45/polymarket-tools/internal/portfolio"
)

// MonitorFactory returns the snapshot provider for a token. The daemon
// wires this to a per-token market.Monitor.
type MonitorFactory func(tokenID string) market.SnapshotProvider

// Router turns validated order requests into orders and dispatches each
// to the execution path its strategy selects.
type Router struct {
	client    exchange.Client
	portfolio portfolio.View
	events    *bus.Bus
	monitors  MonitorFactory

	pollInterval time.Duration
	fillTimeout  time.Duration
}

// NewRouter builds the dispatcher. pollInterval and fillTimeout feed the
// iceberg executor.
func NewRouter(client exchange.Client, view portfolio.View, events *bus.Bus, monitors MonitorFactory, pollInterval, fillTimeout time.Duration) *Router {
	return &Router{
		client:       client,
		portfolio:    view,
		events:       events,
		monitors:     monitors,
		pollInterval: pollInterval,
		fillTimeout:  fillTimeout,
	}
}

// CreateOrder materializes an order from a request. The target price
// starts at the middle of the allowed range; strategies refine it.
func (r *Router) CreateOrder(req model.OrderRequest) *model.Order {
	orderID := fmt.Sprintf("%s-%s", req.Strategy, uuid.NewString()[:8])
	target := (req.MinPrice + req.MaxPrice) / 2
	return model.NewOrder(orderID, req.TokenID, req.MarketID, req.Side, req.TotalSize, target, req.MinPrice, req.MaxPrice, req.Urgency)
}

// Execute runs the order under the request's timeout budget. The order's
// final status is set by the strategy before Execute returns.
func (r *Router) Execute(ctx context.Context, req model.OrderRequest, order *model.Order) error {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	switch req.Strategy {
	case enum.StrategyIceberg:
		executor := NewExecutor(r.client, r.events, r.pollInterval, r.fillTimeout)
		// High urgency trades stealth for speed: the whole size goes out
		// in one placement instead of tranches.
		if req.Urgency == enum.UrgencyHigh {
			return executor.ExecuteSingle(ctx, order)
		}
		return executor.ExecuteIceberg(ctx, order, *req.Iceberg)
	case enum.StrategyMicroPrice:
		provider := r.monitors(req.TokenID)
		return NewMicroPrice(r.client, provider, r.events).Execute(ctx, order, *req.MicroPrice)
	case enum.StrategyKelly:
		provider := r.monitors(req.TokenID)
		return NewKelly(r.client, provider, r.portfolio, r.events).Execute(ctx, order, *req.Kelly)
	default:
		order.UpdateStatus(enum.StatusFailed)
		return exception.ErrUnknownStrategy
	}
}
