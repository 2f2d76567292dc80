package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/exchange"
)

// Position is the cached holding for one token.
type Position struct {
	TokenID  string
	Shares   int64
	AvgPrice float64
}

// View is the read surface the strategies and the Kelly monitor use.
// Reads are point-in-time and may be stale by up to one poll interval.
type View interface {
	PositionsSnapshot() map[string]Position
	OrdersSnapshot() map[string]exchange.OpenOrder
	Exposure(tokenID string) (held, pending int64)
}

// PositionSource supplies the current holdings; the exchange account
// endpoint or a fixture in tests.
type PositionSource interface {
	Positions(ctx context.Context) ([]Position, error)
}

// Cache polls positions and open orders on a fixed cadence. Snapshots
// are read from strategy goroutines while the poll loop writes, so every
// access goes through the mutex.
type Cache struct {
	client    exchange.Client
	positions PositionSource
	interval  time.Duration

	mu        sync.RWMutex
	held      map[string]Position
	open      map[string]exchange.OpenOrder
	refreshed time.Time
}

// NewCache builds a cache polling at the given interval.
func NewCache(client exchange.Client, positions PositionSource, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Cache{
		client:    client,
		positions: positions,
		interval:  interval,
		held:      make(map[string]Position),
		open:      make(map[string]exchange.OpenOrder),
	}
}

// Refresh fetches positions and open orders once.
func (c *Cache) Refresh(ctx context.Context) error {
	positions, err := c.positions.Positions(ctx)
	if err != nil {
		return err
	}

	orders, err := c.client.GetOpenOrders(ctx, "")
	if err != nil {
		return err
	}

	held := make(map[string]Position, len(positions))
	for _, p := range positions {
		held[p.TokenID] = p
	}
	open := make(map[string]exchange.OpenOrder, len(orders))
	for _, o := range orders {
		open[o.ExchangeOrderID] = o
	}

	c.mu.Lock()
	c.held = held
	c.open = open
	c.refreshed = time.Now()
	c.mu.Unlock()
	return nil
}

// Run polls until the context is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logs.Warnf("portfolio refresh failed: %v", err)
			}
		}
	}
}

// PositionsSnapshot returns a copy of the cached holdings.
func (c *Cache) PositionsSnapshot() map[string]Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Position, len(c.held))
	for k, v := range c.held {
		out[k] = v
	}
	return out
}

// OrdersSnapshot returns a copy of the cached open orders.
func (c *Cache) OrdersSnapshot() map[string]exchange.OpenOrder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]exchange.OpenOrder, len(c.open))
	for k, v := range c.open {
		out[k] = v
	}
	return out
}

// Exposure returns held shares and unfilled resting shares for a token.
func (c *Cache) Exposure(tokenID string) (held, pending int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.held[tokenID]; ok {
		held = p.Shares
	}
	for _, o := range c.open {
		if o.TokenID == tokenID {
			pending += o.OriginalSize - o.SizeMatched
		}
	}
	return held, pending
}

// LastRefreshed reports when the cache last succeeded.
func (c *Cache) LastRefreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}
