package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/model"
)

// SnapshotProvider is the read surface the strategies depend on.
type SnapshotProvider interface {
	GetMarketSnapshot(ctx context.Context) (*model.MarketSnapshot, error)
	LastSnapshot() *model.MarketSnapshot
}

// SnapshotStore persists polled snapshots; the store implements it.
type SnapshotStore interface {
	SaveMarketSnapshot(snapshot *model.MarketSnapshot) error
}

// Monitor tracks one instrument's book and derives the micro-price, the
// depth-weighted fair value between best bid and best ask.
type Monitor struct {
	client       exchange.Client
	tokenID      string
	bandWidthBps int
	depthLevels  int
	pollInterval time.Duration
	store        SnapshotStore

	mu   sync.RWMutex
	last *model.MarketSnapshot
}

// Config controls monitor construction.
type Config struct {
	TokenID      string
	BandWidthBps int
	DepthLevels  int
	PollInterval time.Duration

	// Store is optional; when set, the poll loop persists snapshots.
	Store SnapshotStore
}

// NewMonitor builds a monitor for a single token.
func NewMonitor(client exchange.Client, cfg Config) *Monitor {
	bandWidth := cfg.BandWidthBps
	if bandWidth <= 0 {
		bandWidth = 50
	}
	depth := cfg.DepthLevels
	if depth <= 0 {
		depth = 5
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &Monitor{
		client:       client,
		tokenID:      cfg.TokenID,
		bandWidthBps: bandWidth,
		depthLevels:  depth,
		pollInterval: poll,
		store:        cfg.Store,
	}
}

// MicroPrice is the depth-weighted fair value. Heavier depth on one side
// pulls the value toward the other side's price; zero total depth falls
// back to the midpoint.
func MicroPrice(bestBid, bestAsk float64, bidDepth, askDepth int64) float64 {
	totalDepth := bidDepth + askDepth
	if totalDepth == 0 {
		return (bestBid + bestAsk) / 2
	}
	return (bestBid*float64(askDepth) + bestAsk*float64(bidDepth)) / float64(totalDepth)
}

// Bands returns the competitiveness band around a micro-price, clamped
// to [0,1].
func Bands(microPrice float64, bandWidthBps int) (lower, upper float64) {
	band := microPrice * float64(bandWidthBps) / 10000
	lower = microPrice - band
	upper = microPrice + band
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper
}

// GetMarketSnapshot fetches the book and our resting orders and builds a
// fresh snapshot. An empty book side is a hard error: without both sides
// there is no price discovery.
func (m *Monitor) GetMarketSnapshot(ctx context.Context) (*model.MarketSnapshot, error) {
	book, err := m.client.GetOrderBook(ctx, m.tokenID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch order book")
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, errors.Wrap(exception.ErrEmptyOrderBook, m.tokenID)
	}

	bids := make([]model.BookLevel, len(book.Bids))
	for i, b := range book.Bids {
		bids[i] = model.BookLevel{Price: b.Price, Size: b.Size}
	}
	asks := make([]model.BookLevel, len(book.Asks))
	for i, a := range book.Asks {
		asks[i] = model.BookLevel{Price: a.Price, Size: a.Size}
	}

	// Best bid is the highest bid, best ask the lowest ask.
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	if len(bids) > m.depthLevels {
		bids = bids[:m.depthLevels]
	}
	if len(asks) > m.depthLevels {
		asks = asks[:m.depthLevels]
	}

	bestBid, bidDepth := bids[0].Price, bids[0].Size
	bestAsk, askDepth := asks[0].Price, asks[0].Size

	micro := MicroPrice(bestBid, bestAsk, bidDepth, askDepth)
	lower, upper := Bands(micro, m.bandWidthBps)

	snapshot := &model.MarketSnapshot{
		TokenID:             m.tokenID,
		Timestamp:           time.Now(),
		BestBid:             bestBid,
		BestAsk:             bestAsk,
		BidDepth:            bidDepth,
		AskDepth:            askDepth,
		Spread:              bestAsk - bestBid,
		MicroPrice:          micro,
		MicroPriceLowerBand: lower,
		MicroPriceUpperBand: upper,
		Bids:                bids,
		Asks:                asks,
		OurOrders:           m.fetchOurOrders(ctx),
	}

	m.mu.Lock()
	m.last = snapshot
	m.mu.Unlock()

	return snapshot, nil
}

func (m *Monitor) fetchOurOrders(ctx context.Context) []model.RestingOrder {
	open, err := m.client.GetOpenOrders(ctx, m.tokenID)
	if err != nil {
		logs.Warnf("fetch own orders for %s: %v", m.tokenID, err)
		return nil
	}

	out := make([]model.RestingOrder, 0, len(open))
	for _, o := range open {
		out = append(out, model.RestingOrder{
			OrderID: o.ExchangeOrderID,
			Side:    o.Side,
			Price:   o.Price,
			Size:    o.OriginalSize - o.SizeMatched,
		})
	}
	return out
}

// LastSnapshot returns the most recently built snapshot, nil before the
// first successful fetch.
func (m *Monitor) LastSnapshot() *model.MarketSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Run polls the market and persists snapshots until the context is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := m.GetMarketSnapshot(ctx)
			if err != nil {
				logs.Warnf("market poll for %s failed: %v", m.tokenID, err)
				continue
			}
			if m.store != nil {
				if err := m.store.SaveMarketSnapshot(snapshot); err != nil {
					logs.Warnf("persist snapshot for %s failed: %v", m.tokenID, err)
				}
			}
		}
	}
}
