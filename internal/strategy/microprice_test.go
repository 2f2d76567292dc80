package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// fakeExchange scripts order placement and fill reporting for strategy
// tests.
type fakeExchange struct {
	mu sync.Mutex

	placed    []exchange.PlacedOrder
	prices    []float64
	sizes     []int64
	cancelled []string

	// filled maps exchange order id to the fill amount its status reports.
	filled map[string]int64
	nextID int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{filled: make(map[string]int64)}
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, tokenID string, side enum.Side, price float64, size int64) (exchange.PlacedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "ex-" + string(rune('a'+f.nextID-1))
	placed := exchange.PlacedOrder{ExchangeOrderID: id}
	f.placed = append(f.placed, placed)
	f.prices = append(f.prices, price)
	f.sizes = append(f.sizes, size)
	return placed, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return nil
}

func (f *fakeExchange) GetOrderStatus(ctx context.Context, exchangeOrderID string) (exchange.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.OrderStatus{
		ExchangeOrderID: exchangeOrderID,
		FilledAmount:    f.filled[exchangeOrderID],
	}, nil
}

func (f *fakeExchange) GetOrderBook(ctx context.Context, tokenID string) (exchange.OrderBook, error) {
	return exchange.OrderBook{}, nil
}

func (f *fakeExchange) GetOpenOrders(ctx context.Context, tokenID string) ([]exchange.OpenOrder, error) {
	return nil, nil
}

func (f *fakeExchange) fill(id string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filled[id] = amount
}

func (f *fakeExchange) lastPlaced() (exchange.PlacedOrder, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.placed)
	return f.placed[n-1], f.prices[n-1]
}

func (f *fakeExchange) placements() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

// fakeProvider serves a swappable snapshot.
type fakeProvider struct {
	mu       sync.Mutex
	snapshot *model.MarketSnapshot
}

func (p *fakeProvider) GetMarketSnapshot(ctx context.Context) (*model.MarketSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, nil
}

func (p *fakeProvider) LastSnapshot() *model.MarketSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *fakeProvider) set(s *model.MarketSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = s
}

func snapshotAt(micro, bestBid, bestAsk float64, bandBps int) *model.MarketSnapshot {
	band := micro * float64(bandBps) / 10000
	return &model.MarketSnapshot{
		TokenID:             "tok-1",
		Timestamp:           time.Now(),
		BestBid:             bestBid,
		BestAsk:             bestAsk,
		Spread:              bestAsk - bestBid,
		MicroPrice:          micro,
		MicroPriceLowerBand: micro - band,
		MicroPriceUpperBand: micro + band,
	}
}

func testOrder(side enum.Side, size int64) *model.Order {
	return model.NewOrder("order-1", "tok-1", "mkt-1", side, size, 0.50, 0.10, 0.90, enum.UrgencyMedium)
}

func TestMicroPriceInitialPrice(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 50)}

	s := NewMicroPrice(client, provider, nil)

	price, err := s.initialPrice(t.Context(), testOrder(enum.SideBuy, 100))
	require.NoError(t, err)
	assert.InDelta(t, 0.49, price, 1e-9)

	price, err = s.initialPrice(t.Context(), testOrder(enum.SideSell, 100))
	require.NoError(t, err)
	assert.InDelta(t, 0.51, price, 1e-9)
}

func TestMicroPriceInitialPriceRespectsBestQuotes(t *testing.T) {
	client := newFakeExchange()
	// Tight market: the one-cent nudge would cross the best bid.
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.498, 0.502, 50)}

	s := NewMicroPrice(client, provider, nil)

	price, err := s.initialPrice(t.Context(), testOrder(enum.SideBuy, 100))
	require.NoError(t, err)
	assert.InDelta(t, 0.498, price, 1e-9)
}

func TestMicroPriceInitialPriceClampedToOrderBounds(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.95, 0.93, 0.97, 50)}

	s := NewMicroPrice(client, provider, nil)

	order := testOrder(enum.SideBuy, 100)
	order.MaxPrice = 0.60
	price, err := s.initialPrice(t.Context(), order)
	require.NoError(t, err)
	assert.InDelta(t, 0.60, price, 1e-9)
}

func TestMicroPriceCompletesOnFill(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 500)}

	s := NewMicroPrice(client, provider, nil)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       500,
		CheckInterval:      10 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		placed, _ := client.lastPlaced()
		client.fill(placed.ExchangeOrderID, 100)
	}()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	err := s.Execute(ctx, order, params)
	require.NoError(t, err)

	assert.Equal(t, enum.StatusCompleted, order.Status)
	assert.Equal(t, int64(100), order.FilledAmount)
	assert.Equal(t, int64(0), order.RemainingAmount)
}

func TestMicroPriceReplacesWhenOutOfBand(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 200)}

	s := NewMicroPrice(client, provider, nil)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       200,
		CheckInterval:      10 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	go func() { done <- s.Execute(ctx, order, params) }()

	// Wait for the first placement, then move the market far enough that
	// the resting price falls outside the band.
	require.Eventually(t, func() bool { return client.placements() >= 1 }, time.Second, 5*time.Millisecond)
	provider.set(snapshotAt(0.60, 0.58, 0.62, 200))

	require.Eventually(t, func() bool { return client.placements() >= 2 }, time.Second, 5*time.Millisecond)

	placed, price := client.lastPlaced()
	assert.InDelta(t, 0.59, price, 1e-9)
	client.fill(placed.ExchangeOrderID, 100)

	require.NoError(t, <-done)
	assert.Equal(t, enum.StatusCompleted, order.Status)
	assert.Equal(t, 1, order.AdjustmentCount)
	assert.GreaterOrEqual(t, order.UndercutCount, 1)
}

func TestMicroPriceWideThresholdIgnoresNarrowMonitorBands(t *testing.T) {
	client := newFakeExchange()
	// Snapshot bands are the monitor's narrow 50 bps; the order's own
	// threshold is the widest legal band and must govern.
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 50)}

	s := NewMicroPrice(client, provider, nil)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       10000,
		CheckInterval:      10 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	go func() { done <- s.Execute(ctx, order, params) }()

	require.Eventually(t, func() bool { return client.placements() >= 1 }, time.Second, 5*time.Millisecond)
	provider.set(snapshotAt(0.53, 0.51, 0.55, 50))

	// Several check intervals pass; nothing can be outside a 10000 bps
	// band, so the resting order must stay put.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, client.placements())
	assert.Equal(t, 0, order.UndercutCount)

	placed, _ := client.lastPlaced()
	client.fill(placed.ExchangeOrderID, 100)
	require.NoError(t, <-done)
	assert.Equal(t, enum.StatusCompleted, order.Status)
	assert.Equal(t, 0, order.AdjustmentCount)
}

func TestMicroPriceNarrowThresholdOverridesWideMonitorBands(t *testing.T) {
	client := newFakeExchange()
	// Tight book so the initial price clamps to the best bid, inside the
	// order's 100 bps band. The snapshot carries effectively unbounded
	// monitor bands.
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.4995, 0.5005, 10000)}

	s := NewMicroPrice(client, provider, nil)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       100,
		CheckInterval:      10 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	go func() { done <- s.Execute(ctx, order, params) }()

	require.Eventually(t, func() bool { return client.placements() >= 1 }, time.Second, 5*time.Millisecond)

	// The move leaves the resting price outside the order's band while
	// staying comfortably inside the snapshot's.
	provider.set(snapshotAt(0.508, 0.5075, 0.5085, 10000))

	require.Eventually(t, func() bool { return client.placements() >= 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, order.UndercutCount, 1)

	placed, _ := client.lastPlaced()
	client.fill(placed.ExchangeOrderID, 100)
	require.NoError(t, <-done)
	assert.Equal(t, enum.StatusCompleted, order.Status)
}

func TestMicroPriceSurvivesClosedResizeChannel(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 50)}
	resize := make(chan int64)

	s := NewMicroPrice(client, provider, nil).WithResize(resize)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       10000,
		CheckInterval:      10 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	go func() { done <- s.Execute(ctx, order, params) }()

	require.Eventually(t, func() bool { return client.placements() >= 1 }, time.Second, 5*time.Millisecond)

	// The loop must keep ticking and reconciling after the owner closes
	// the channel.
	close(resize)

	placed, _ := client.lastPlaced()
	client.fill(placed.ExchangeOrderID, 100)
	require.NoError(t, <-done)
	assert.Equal(t, enum.StatusCompleted, order.Status)
}

func TestMicroPriceTimeoutWithPartialFill(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 500)}

	s := NewMicroPrice(client, provider, nil)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       500,
		CheckInterval:      10 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		placed, _ := client.lastPlaced()
		client.fill(placed.ExchangeOrderID, 40)
	}()

	ctx, cancel := context.WithTimeout(t.Context(), 150*time.Millisecond)
	defer cancel()
	err := s.Execute(ctx, order, params)
	require.NoError(t, err)

	assert.Equal(t, enum.StatusPartiallyFilled, order.Status)
	assert.Equal(t, int64(40), order.FilledAmount)
	assert.NotEmpty(t, client.cancelled)
}

func TestMicroPriceTimeoutWithoutFillFails(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 500)}

	s := NewMicroPrice(client, provider, nil)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       500,
		CheckInterval:      20 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	ctx, cancel := context.WithTimeout(t.Context(), 80*time.Millisecond)
	defer cancel()
	err := s.Execute(ctx, order, params)
	require.NoError(t, err)

	assert.Equal(t, enum.StatusFailed, order.Status)
}

func TestMicroPriceResizeToZeroCompletes(t *testing.T) {
	client := newFakeExchange()
	provider := &fakeProvider{snapshot: snapshotAt(0.50, 0.48, 0.52, 500)}

	resize := make(chan int64, 1)
	s := NewMicroPrice(client, provider, nil).WithResize(resize)
	order := testOrder(enum.SideBuy, 100)
	params := model.MicroPriceParams{
		ThresholdBps:       500,
		CheckInterval:      50 * time.Millisecond,
		MaxAdjustments:     5,
		AggressionLimitBps: 10000,
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	go func() { done <- s.Execute(ctx, order, params) }()

	require.Eventually(t, func() bool { return client.placements() >= 1 }, time.Second, 5*time.Millisecond)
	resize <- 0

	require.NoError(t, <-done)
	assert.Equal(t, enum.StatusCompleted, order.Status)
	assert.NotEmpty(t, client.cancelled)
}
