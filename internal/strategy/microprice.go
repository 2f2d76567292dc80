package strategy

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/bus"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/market"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// MicroPrice places an order near the depth-weighted fair value and
// keeps it competitive: each check interval the resting order is
// replaced when it drifts outside the micro-price band or sits too far
// ahead of the best competing price. One instance drives one order.
type MicroPrice struct {
	client   exchange.Client
	provider market.SnapshotProvider
	events   *bus.Bus

	// resize lets an owning Kelly strategy re-derive the order size from
	// outside the loop; nil for plain micro-price execution.
	resize <-chan int64

	activeExchangeID string
	countedFills     int64
	adjustments      int
}

// NewMicroPrice builds a strategy instance for a single execution.
func NewMicroPrice(client exchange.Client, provider market.SnapshotProvider, events *bus.Bus) *MicroPrice {
	return &MicroPrice{
		client:   client,
		provider: provider,
		events:   events,
	}
}

// WithResize attaches a size-recalculation channel (Kelly execution).
func (s *MicroPrice) WithResize(resize <-chan int64) *MicroPrice {
	s.resize = resize
	return s
}

// AdjustmentCount reports how many replacements were made.
func (s *MicroPrice) AdjustmentCount() int {
	return s.adjustments
}

// Execute drives the order until it fills, its size is recalculated to
// zero, or the context deadline (the request timeout) lapses. The final
// status is written into the order.
func (s *MicroPrice) Execute(ctx context.Context, order *model.Order, params model.MicroPriceParams) error {
	logs.Infof("order %s micro-price start: %s %d @ [%.4f,%.4f], threshold %dbps",
		order.OrderID, order.Side, order.TotalSize, order.MinPrice, order.MaxPrice, params.ThresholdBps)

	price, err := s.initialPrice(ctx, order)
	if err != nil {
		order.UpdateStatus(enum.StatusFailed)
		return err
	}
	if err := s.place(ctx, order, price); err != nil {
		order.UpdateStatus(enum.StatusFailed)
		return err
	}

	ticker := time.NewTicker(params.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, done := context.WithTimeout(context.Background(), 5*time.Second)
			s.reconcileFills(final, order)
			done()
			s.cancelResting(order, "timeout")
			s.finalizeByFills(order)
			return nil

		case newSize, ok := <-s.resizeCh():
			if !ok {
				// A closed channel would stay ready forever; drop it so
				// the select stops seeing it.
				s.resize = nil
				continue
			}
			newPrice, err := s.applyResize(ctx, order, newSize, price)
			if err != nil {
				logs.Warnf("order %s resize failed: %v", order.OrderID, err)
			} else {
				price = newPrice
			}
			if order.Status.IsTerminal() {
				return nil
			}

		case <-ticker.C:
			snapshot, err := s.provider.GetMarketSnapshot(ctx)
			if err != nil {
				logs.Warnf("order %s snapshot refresh failed: %v", order.OrderID, err)
				continue
			}

			if reason := s.replaceReason(order, price, snapshot, params); reason != "" {
				order.RecordUndercut()
				s.publish(enum.EventUndercut, order, map[string]any{
					"reason":   reason,
					"price":    price,
					"micro":    snapshot.MicroPrice,
					"best_bid": snapshot.BestBid,
					"best_ask": snapshot.BestAsk,
				})

				if s.adjustments < params.MaxAdjustments {
					newPrice, err := s.replace(ctx, order, price)
					if err != nil {
						logs.Warnf("order %s replace failed: %v", order.OrderID, err)
					} else {
						price = newPrice
					}
				} else {
					logs.Warnf("order %s hit max adjustments (%d), keeping current order",
						order.OrderID, params.MaxAdjustments)
				}
			}

			s.reconcileFills(ctx, order)
			if order.RemainingAmount == 0 {
				order.UpdateStatus(enum.StatusCompleted)
				logs.Infof("order %s micro-price complete, %d adjustments", order.OrderID, s.adjustments)
				return nil
			}
		}
	}
}

func (s *MicroPrice) resizeCh() <-chan int64 {
	if s.resize != nil {
		return s.resize
	}
	// A nil channel never fires, which is exactly what we want when no
	// recalculation task exists.
	return nil
}

// initialPrice starts at the micro-price nudged toward our own side,
// never crossing the opposite best nor leaving the caller's bounds.
func (s *MicroPrice) initialPrice(ctx context.Context, order *model.Order) (float64, error) {
	snapshot, err := s.provider.GetMarketSnapshot(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "initial snapshot")
	}

	price := snapshot.MicroPrice
	if order.Side == enum.SideBuy {
		price -= 0.01
		if price < snapshot.BestBid {
			price = snapshot.BestBid
		}
	} else {
		price += 0.01
		if price > snapshot.BestAsk {
			price = snapshot.BestAsk
		}
	}

	if price < order.MinPrice {
		price = order.MinPrice
	}
	if price > order.MaxPrice {
		price = order.MaxPrice
	}

	logs.Infof("order %s initial price %.4f (micro %.4f, bid %.4f, ask %.4f)",
		order.OrderID, price, snapshot.MicroPrice, snapshot.BestBid, snapshot.BestAsk)
	return price, nil
}

func (s *MicroPrice) place(ctx context.Context, order *model.Order, price float64) error {
	placed, err := s.client.PlaceOrder(ctx, order.TokenID, order.Side, price, order.RemainingAmount)
	if err != nil {
		return errors.Wrap(err, "place order")
	}
	s.activeExchangeID = placed.ExchangeOrderID
	s.countedFills = 0

	order.UpdateStatus(enum.StatusActive)
	s.publish(enum.EventActive, order, map[string]any{
		"price": price,
		"size":  order.RemainingAmount,
	})
	return nil
}

// replaceReason returns a non-empty trigger name when the resting order
// should be replaced: outside this order's threshold band around the
// micro-price, or more than the aggression limit ahead of the best
// competing price on our side. The band comes from the order's params,
// not the monitor's global band width.
func (s *MicroPrice) replaceReason(order *model.Order, price float64, snapshot *model.MarketSnapshot, params model.MicroPriceParams) string {
	lower, upper := market.Bands(snapshot.MicroPrice, params.ThresholdBps)
	if price < lower || price > upper {
		return "out_of_bounds"
	}

	limit := params.AggressionLimitFraction()
	if order.Side == enum.SideBuy {
		if snapshot.BestBid > 0 && (price-snapshot.BestBid)/snapshot.BestBid > limit {
			return "too_aggressive_buy"
		}
	} else {
		if snapshot.BestAsk > 0 && (snapshot.BestAsk-price)/snapshot.BestAsk > limit {
			return "too_aggressive_sell"
		}
	}
	return ""
}

func (s *MicroPrice) replace(ctx context.Context, order *model.Order, current float64) (float64, error) {
	s.reconcileFills(ctx, order)
	if order.RemainingAmount == 0 {
		// The resting order filled while we were deciding to replace it.
		return current, nil
	}
	s.cancelResting(order, "replace")

	price, err := s.initialPrice(ctx, order)
	if err != nil {
		return 0, err
	}
	if err := s.place(ctx, order, price); err != nil {
		return 0, err
	}

	s.adjustments++
	order.RecordAdjustment()
	s.publish(enum.EventReplaced, order, map[string]any{
		"new_price":        price,
		"adjustment_count": s.adjustments,
	})
	return price, nil
}

// applyResize handles a Kelly recalculation: cancel the resting order,
// adopt the new size, and either finish (size 0) or re-place.
func (s *MicroPrice) applyResize(ctx context.Context, order *model.Order, newSize int64, price float64) (float64, error) {
	s.reconcileFills(ctx, order)
	s.cancelResting(order, "kelly_recalculation")

	order.Resize(order.FilledAmount + newSize)
	if newSize <= 0 {
		order.UpdateStatus(enum.StatusCompleted)
		logs.Infof("order %s optimal position reached, stopping", order.OrderID)
		return price, nil
	}

	newPrice, err := s.initialPrice(ctx, order)
	if err != nil {
		newPrice = price
	}
	if err := s.place(ctx, order, newPrice); err != nil {
		return price, err
	}

	s.publish(enum.EventReplaced, order, map[string]any{
		"new_size":  newSize,
		"new_price": newPrice,
	})
	return newPrice, nil
}

// reconcileFills folds exchange-reported fills for the current placement
// into the order.
func (s *MicroPrice) reconcileFills(ctx context.Context, order *model.Order) {
	if s.activeExchangeID == "" {
		return
	}

	status, err := s.client.GetOrderStatus(ctx, s.activeExchangeID)
	if err != nil {
		logs.Warnf("order %s fill check failed: %v", order.OrderID, err)
		return
	}

	newFill := status.FilledAmount - s.countedFills
	if newFill <= 0 {
		return
	}
	s.countedFills = status.FilledAmount
	order.RecordFill(newFill)

	kind := enum.EventPartiallyFilled
	if order.RemainingAmount == 0 {
		kind = enum.EventFilled
	}
	s.publish(kind, order, map[string]any{
		"amount":        newFill,
		"price":         status.Price,
		"filled_amount": order.FilledAmount,
		"total_size":    order.TotalSize,
	})
}

// cancelResting cancels the active exchange order, detached from the
// caller's context so cleanup still runs after a timeout.
func (s *MicroPrice) cancelResting(order *model.Order, reason string) {
	if s.activeExchangeID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.CancelOrder(ctx, s.activeExchangeID); err != nil {
		logs.Warnf("order %s cancel %s failed: %v", order.OrderID, s.activeExchangeID, err)
	} else {
		s.publish(enum.EventCancelled, order, map[string]any{"reason": reason})
	}
	s.activeExchangeID = ""
}

// finalizeByFills sets the terminal status the accumulated fill state
// implies when the timeout budget lapses.
func (s *MicroPrice) finalizeByFills(order *model.Order) {
	switch {
	case order.RemainingAmount == 0 && order.TotalSize > 0:
		order.UpdateStatus(enum.StatusCompleted)
	case order.FilledAmount > 0:
		order.UpdateStatus(enum.StatusPartiallyFilled)
	default:
		order.UpdateStatus(enum.StatusFailed)
	}
}

func (s *MicroPrice) publish(kind enum.EventKind, order *model.Order, details map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(model.NewEvent(kind, order.OrderID, order.Snapshot(), details))
}
