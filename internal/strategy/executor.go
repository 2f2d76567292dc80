package strategy

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/bus"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/fill"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// Executor places single orders and iceberg tranche sequences on the
// exchange and monitors them to fill-or-timeout.
type Executor struct {
	client       exchange.Client
	events       *bus.Bus
	pollInterval time.Duration
	fillTimeout  time.Duration
}

// NewExecutor builds an executor. pollInterval is the status poll
// cadence, fillTimeout the per-placement fill deadline.
func NewExecutor(client exchange.Client, events *bus.Bus, pollInterval, fillTimeout time.Duration) *Executor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if fillTimeout <= 0 {
		fillTimeout = 60 * time.Second
	}
	return &Executor{
		client:       client,
		events:       events,
		pollInterval: pollInterval,
		fillTimeout:  fillTimeout,
	}
}

// ExecuteSingle places the whole order at its target price and waits for
// fill or timeout.
func (e *Executor) ExecuteSingle(ctx context.Context, order *model.Order) error {
	order.UpdateStatus(enum.StatusActive)
	e.publish(enum.EventActive, order, map[string]any{
		"price": order.TargetPrice,
		"size":  order.TotalSize,
	})

	placed, err := e.client.PlaceOrder(ctx, order.TokenID, order.Side, order.TargetPrice, order.TotalSize)
	if err != nil {
		order.UpdateStatus(enum.StatusFailed)
		return errors.Wrap(err, "place single order")
	}

	filled := e.monitorUntilFilled(ctx, placed.ExchangeOrderID, order.TotalSize)
	if filled < order.TotalSize {
		e.cancelPlacement(placed.ExchangeOrderID)
	}
	if filled > 0 {
		order.RecordFill(filled)
		e.publishFill(order, filled, order.TargetPrice)
	}
	if order.Status != enum.StatusCompleted && order.Status != enum.StatusPartiallyFilled {
		order.UpdateStatus(enum.StatusFailed)
	}
	return nil
}

// ExecuteIceberg runs the tranche sequence. A tranche that fails or only
// partially fills stops the whole order; iceberg execution never skips
// ahead past an unfilled tranche.
func (e *Executor) ExecuteIceberg(ctx context.Context, order *model.Order, params model.IcebergParams) error {
	iceberg := NewIceberg(params)
	tracker := fill.NewTracker(order.TotalSize)

	order.UpdateStatus(enum.StatusActive)
	e.publish(enum.EventActive, order, map[string]any{
		"price":      order.TargetPrice,
		"total_size": order.TotalSize,
	})

	trancheNumber := 0
	for !tracker.IsComplete() {
		if err := ctx.Err(); err != nil {
			break
		}

		trancheNumber++
		size := iceberg.NextTrancheSize(tracker.TotalRemaining(), trancheNumber == 1)
		if size == 0 {
			break
		}

		logs.Infof("order %s tranche %d: %d shares @ %.4f", order.OrderID, trancheNumber, size, order.TargetPrice)

		placed, err := e.client.PlaceOrder(ctx, order.TokenID, order.Side, order.TargetPrice, size)
		if err != nil {
			logs.Errorf("order %s tranche %d placement failed: %v", order.OrderID, trancheNumber, err)
			break
		}

		filled := e.monitorUntilFilled(ctx, placed.ExchangeOrderID, size)
		if filled < size {
			e.cancelPlacement(placed.ExchangeOrderID)
		}
		tracker.RecordTrancheFill(trancheNumber, size, filled, order.TargetPrice)
		if filled > 0 {
			order.RecordFill(filled)
			e.publishFill(order, filled, order.TargetPrice)
		}

		if filled < size {
			logs.Warnf("order %s tranche %d filled %d/%d, stopping", order.OrderID, trancheNumber, filled, size)
			break
		}

		if !tracker.IsComplete() {
			delay := iceberg.InterTrancheDelay()
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	switch {
	case tracker.IsComplete():
		order.UpdateStatus(enum.StatusCompleted)
	case tracker.TotalFilled() > 0:
		order.UpdateStatus(enum.StatusPartiallyFilled)
	default:
		order.UpdateStatus(enum.StatusFailed)
	}

	logs.Infof("order %s iceberg done: %s, filled %d/%d over %d tranches, vwap %.4f",
		order.OrderID, order.Status, tracker.TotalFilled(), order.TotalSize,
		tracker.TrancheCount(), tracker.AverageFillPrice())
	return nil
}

// monitorUntilFilled polls the exchange until the placement fills, the
// fill timeout lapses, or the context is cancelled. Returns the final
// filled amount observed.
func (e *Executor) monitorUntilFilled(ctx context.Context, exchangeOrderID string, target int64) int64 {
	deadline := time.Now().Add(e.fillTimeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	var lastFilled int64
	for {
		if time.Now().After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return e.finalFilled(exchangeOrderID, lastFilled)
		case <-ticker.C:
		}

		status, err := e.client.GetOrderStatus(ctx, exchangeOrderID)
		if err != nil {
			logs.Warnf("status poll for %s failed: %v", exchangeOrderID, err)
			continue
		}

		lastFilled = status.FilledAmount
		if lastFilled >= target {
			return lastFilled
		}
	}
	return e.finalFilled(exchangeOrderID, lastFilled)
}

// cancelPlacement pulls an unfilled placement off the book. Detached
// context so a cancelled caller can still clean up.
func (e *Executor) cancelPlacement(exchangeOrderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.client.CancelOrder(ctx, exchangeOrderID); err != nil {
		logs.Warnf("cancel %s failed: %v", exchangeOrderID, err)
	}
}

func (e *Executor) finalFilled(exchangeOrderID string, lastSeen int64) int64 {
	// Final read without the caller's context so a timed-out order still
	// reports the fills it got.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := e.client.GetOrderStatus(ctx, exchangeOrderID)
	if err != nil {
		logs.Warnf("final status read for %s failed: %v", exchangeOrderID, err)
		return lastSeen
	}
	return status.FilledAmount
}

func (e *Executor) publish(kind enum.EventKind, order *model.Order, details map[string]any) {
	if e.events == nil {
		return
	}
	_ = e.events.Publish(model.NewEvent(kind, order.OrderID, order.Snapshot(), details))
}

func (e *Executor) publishFill(order *model.Order, amount int64, price float64) {
	kind := enum.EventPartiallyFilled
	if order.RemainingAmount == 0 {
		kind = enum.EventFilled
	}
	e.publish(kind, order, map[string]any{
		"amount":        amount,
		"price":         price,
		"filled_amount": order.FilledAmount,
		"total_size":    order.TotalSize,
	})
}
