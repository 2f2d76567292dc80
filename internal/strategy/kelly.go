package strategy

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/bus"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/market"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
	"github.com/youturn45/polymarket-tools/internal/portfolio"
)

// Edge is the perceived advantage over the market price: positive when
// our probability estimate says the contract is mispriced in our favor.
// For a buy, the market's implied probability is the price itself; for a
// sell it is one minus the price.
func Edge(winProbability, price float64, side enum.Side) float64 {
	if side == enum.SideBuy {
		return winProbability - price
	}
	return winProbability - (1 - price)
}

// Fraction computes the Kelly-optimal fraction of bankroll for a binary
// contract. Buying at price p pays (1-p)/p to 1, selling pays p/(1-p) to
// 1. edgeUpperBound caps the probability estimate so an overconfident
// input cannot produce reckless sizing; zero disables the cap. The
// result is clamped to [0,1].
func Fraction(winProbability, price float64, side enum.Side, edgeUpperBound float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}

	pWin := winProbability
	if edgeUpperBound > 0 {
		var bound float64
		if side == enum.SideBuy {
			bound = price + edgeUpperBound
		} else {
			bound = 1 - price + edgeUpperBound
		}
		if pWin > bound {
			pWin = bound
		}
	}
	if pWin < 0 {
		pWin = 0
	}
	if pWin > 1 {
		pWin = 1
	}

	var odds float64
	if side == enum.SideBuy {
		odds = (1 - price) / price
	} else {
		odds = price / (1 - price)
	}
	if odds <= 0 {
		return 0
	}

	f := (odds*pWin - (1 - pWin)) / odds
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// OptimalShares converts a Kelly fraction into whole shares: bankroll
// times fraction times the fractional-Kelly multiplier, divided by the
// share price, floored, and capped at the position limit.
func OptimalShares(bankroll, fraction, multiplier, price float64, maxPosition int64) int64 {
	if price <= 0 || fraction <= 0 || multiplier <= 0 {
		return 0
	}
	shares := int64(math.Floor(bankroll * fraction * multiplier / price))
	if shares < 0 {
		shares = 0
	}
	if maxPosition > 0 && shares > maxPosition {
		shares = maxPosition
	}
	return shares
}

// IncrementalShares is what remains to reach the optimal position after
// accounting for shares already held and resting unfilled orders. Never
// negative: an overweight position is the monitor daemon's concern, not
// the strategy's.
func IncrementalShares(optimal, held, pending int64) int64 {
	incremental := optimal - held - pending
	if incremental < 0 {
		return 0
	}
	return incremental
}

// Kelly sizes a position from the bankroll and the current market, then
// delegates execution to the micro-price strategy. A background task
// re-derives the size on a fixed cadence and pushes material changes
// into the running execution loop.
type Kelly struct {
	client    exchange.Client
	provider  market.SnapshotProvider
	portfolio portfolio.View
	events    *bus.Bus
}

// NewKelly builds the sizing strategy.
func NewKelly(client exchange.Client, provider market.SnapshotProvider, view portfolio.View, events *bus.Bus) *Kelly {
	return &Kelly{
		client:    client,
		provider:  provider,
		portfolio: view,
		events:    events,
	}
}

// Execute derives the incremental position and drives it to fill. An
// incremental size of zero means the position is already optimal and the
// order completes immediately.
func (s *Kelly) Execute(ctx context.Context, order *model.Order, params model.KellyParams) error {
	snapshot, err := s.provider.GetMarketSnapshot(ctx)
	if err != nil {
		order.UpdateStatus(enum.StatusFailed)
		return errors.Wrap(err, "kelly sizing snapshot")
	}

	held, pending := s.portfolio.Exposure(order.TokenID)
	incremental := s.incremental(snapshot.MicroPrice, order.Side, held, pending, params)
	logs.Infof("order %s kelly sizing: price %.4f, prob %.2f, held %d, pending %d, incremental %d shares",
		order.OrderID, snapshot.MicroPrice, params.WinProbability, held, pending, incremental)

	if incremental == 0 {
		order.UpdateStatus(enum.StatusCompleted)
		s.publish(enum.EventCompleted, order, map[string]any{
			"reason": "position_already_optimal",
			"price":  snapshot.MicroPrice,
		})
		return nil
	}

	order.Resize(incremental)

	resize := make(chan int64, 1)
	recalcCtx, stopRecalc := context.WithCancel(ctx)
	defer stopRecalc()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.recalcLoop(recalcCtx, order.OrderID, order.TokenID, order.Side, incremental, params, resize)
	}()

	micro := NewMicroPrice(s.client, s.provider, s.events).WithResize(resize)
	err = micro.Execute(ctx, order, params.MicroPrice)

	stopRecalc()
	wg.Wait()
	return err
}

// incremental derives the shares still needed at the given price after
// subtracting current exposure.
func (s *Kelly) incremental(price float64, side enum.Side, held, pending int64, params model.KellyParams) int64 {
	fraction := Fraction(params.WinProbability, price, side, params.EdgeUpperBound)
	optimal := OptimalShares(params.Bankroll, fraction, params.KellyFraction, price, params.MaxPositionSize)
	return IncrementalShares(optimal, held, pending)
}

// recalcLoop re-derives the incremental size on the recalc interval and
// pushes it to the execution loop when the relative change exceeds the
// threshold. The order itself belongs to the execution goroutine, so the
// loop tracks the last size it pushed rather than reading the order.
// Pending exposure is excluded here: the token-isolated execution's own
// resting order is the only pending exposure on this token and it is
// already what the resize replaces.
func (s *Kelly) recalcLoop(ctx context.Context, orderID, tokenID string, side enum.Side, initialSize int64, params model.KellyParams, resize chan<- int64) {
	ticker := time.NewTicker(params.RecalcInterval)
	defer ticker.Stop()

	lastSize := initialSize
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot, err := s.provider.GetMarketSnapshot(ctx)
		if err != nil {
			logs.Warnf("order %s kelly recalc snapshot failed: %v", orderID, err)
			continue
		}

		held, _ := s.portfolio.Exposure(tokenID)
		recalculated := s.incremental(snapshot.MicroPrice, side, held, 0, params)
		if lastSize <= 0 {
			continue
		}

		changePct := math.Abs(float64(recalculated-lastSize)) / float64(lastSize)
		if changePct <= params.RecalcThresholdPct {
			continue
		}

		logs.Infof("order %s kelly recalc: %d -> %d shares (%.1f%% change)",
			orderID, lastSize, recalculated, changePct*100)

		select {
		case resize <- recalculated:
			lastSize = recalculated
		case <-ctx.Done():
			return
		}
	}
}

func (s *Kelly) publish(kind enum.EventKind, order *model.Order, details map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(model.NewEvent(kind, order.OrderID, order.Snapshot(), details))
}
