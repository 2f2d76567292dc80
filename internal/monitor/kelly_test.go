package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/market"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
	"github.com/youturn45/polymarket-tools/internal/portfolio"
)

type fakeClient struct {
	exchange.Client

	mu        sync.Mutex
	open      []exchange.OpenOrder
	cancelled []string
}

func (f *fakeClient) GetOpenOrders(ctx context.Context, tokenID string) ([]exchange.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return nil
}

func (f *fakeClient) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []model.OrderRequest
}

func (f *fakeSubmitter) Submit(req model.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return "order-1", nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSubmitter) last() model.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeView struct {
	mu      sync.Mutex
	held    int64
	pending int64
}

func (f *fakeView) PositionsSnapshot() map[string]portfolio.Position { return nil }

func (f *fakeView) OrdersSnapshot() map[string]exchange.OpenOrder { return nil }

func (f *fakeView) Exposure(tokenID string) (int64, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held, f.pending
}

type fakeProvider struct {
	mu    sync.Mutex
	micro float64
}

func (p *fakeProvider) GetMarketSnapshot(ctx context.Context) (*model.MarketSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &model.MarketSnapshot{
		TokenID:    "tok-1",
		Timestamp:  time.Now(),
		BestBid:    p.micro - 0.01,
		BestAsk:    p.micro + 0.01,
		MicroPrice: p.micro,
	}, nil
}

func (p *fakeProvider) LastSnapshot() *model.MarketSnapshot { return nil }

func (p *fakeProvider) set(micro float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.micro = micro
}

func testParams() model.KellyMonitorParams {
	return model.KellyMonitorParams{
		MonitorDuration:          time.Hour,
		PriceChangeThresholdPct:  0.05,
		PositionDeviationPct:     0.10,
		CheckInterval:            10 * time.Millisecond,
		PeriodicRebalanceEvery:   time.Hour,
		MinRebalanceShares:       10,
		MaxRebalancesPerDay:      6,
		CancelOrdersOnCompletion: true,
		Kelly: model.KellyParams{
			WinProbability:     0.65,
			KellyFraction:      1,
			MaxPositionSize:    100000,
			Bankroll:           1000,
			RecalcInterval:     time.Second,
			RecalcThresholdPct: 0.05,
			MicroPrice:         model.DefaultMicroPriceParams(),
		},
	}
}

func newTestDaemon(client *fakeClient, submitter *fakeSubmitter, view *fakeView, provider *fakeProvider) *KellyMonitorDaemon {
	return NewKellyMonitorDaemon(client, submitter, view,
		func(tokenID string) market.SnapshotProvider { return provider })
}

func testRequest() Request {
	return Request{
		TokenID:  "tok-1",
		MarketID: "mkt-1",
		Side:     enum.SideBuy,
		MinPrice: 0.10,
		MaxPrice: 0.90,
		Params:   testParams(),
	}
}

func TestAddTokenMonitorRequiresRunning(t *testing.T) {
	d := newTestDaemon(&fakeClient{}, &fakeSubmitter{}, &fakeView{}, &fakeProvider{micro: 0.50})

	_, err := d.AddTokenMonitor(t.Context(), testRequest())
	assert.ErrorIs(t, err, exception.ErrMonitorNotRunning)
}

func TestAddTokenMonitorRejectsDuplicateToken(t *testing.T) {
	d := newTestDaemon(&fakeClient{}, &fakeSubmitter{}, &fakeView{}, &fakeProvider{micro: 0.50})
	require.NoError(t, d.Start(t.Context()))
	defer func() { _ = d.Stop() }()

	_, err := d.AddTokenMonitor(t.Context(), testRequest())
	require.NoError(t, err)

	_, err = d.AddTokenMonitor(t.Context(), testRequest())
	assert.ErrorIs(t, err, exception.ErrTokenAlreadyMonitored)
}

func TestRemoveTokenMonitor(t *testing.T) {
	d := newTestDaemon(&fakeClient{}, &fakeSubmitter{}, &fakeView{}, &fakeProvider{micro: 0.50})
	require.NoError(t, d.Start(t.Context()))
	defer func() { _ = d.Stop() }()

	_, err := d.AddTokenMonitor(t.Context(), testRequest())
	require.NoError(t, err)

	require.NoError(t, d.RemoveTokenMonitor("tok-1"))
	assert.ErrorIs(t, d.RemoveTokenMonitor("tok-1"), exception.ErrSessionNotFound)

	// A removed token can be monitored again.
	_, err = d.AddTokenMonitor(t.Context(), testRequest())
	require.NoError(t, err)
}

func TestPriceMoveTriggersRebalance(t *testing.T) {
	client := &fakeClient{}
	submitter := &fakeSubmitter{}
	provider := &fakeProvider{micro: 0.50}
	// 600 shares is exactly Kelly-optimal at 0.50 for these params, so
	// only a price move can fire a trigger.
	view := &fakeView{held: 600}
	d := newTestDaemon(client, submitter, view, provider)
	require.NoError(t, d.Start(t.Context()))
	defer func() { _ = d.Stop() }()

	_, err := d.AddTokenMonitor(t.Context(), testRequest())
	require.NoError(t, err)

	// 20% drop against a 5% threshold; a cheaper price raises the
	// optimal position for a buy.
	provider.set(0.40)

	require.Eventually(t, func() bool { return submitter.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	req := submitter.last()
	assert.Equal(t, "tok-1", req.TokenID)
	assert.Equal(t, enum.StrategyMicroPrice, req.Strategy)
	assert.Equal(t, enum.SideBuy, req.Side)
	// Optimal at 0.40 is 1041 shares; 600 already held.
	assert.Equal(t, int64(441), req.TotalSize)
	require.NoError(t, req.Validate())
}

func TestRebalanceNeverSells(t *testing.T) {
	client := &fakeClient{}
	submitter := &fakeSubmitter{}
	provider := &fakeProvider{micro: 0.50}
	// Far more held than the Kelly-optimal size.
	view := &fakeView{held: 1_000_000}
	d := newTestDaemon(client, submitter, view, provider)
	require.NoError(t, d.Start(t.Context()))
	defer func() { _ = d.Stop() }()

	_, err := d.AddTokenMonitor(t.Context(), testRequest())
	require.NoError(t, err)

	provider.set(0.40)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, submitter.count(), "an oversized position must never trigger a sell")
}

func TestRebalanceDailyLimit(t *testing.T) {
	client := &fakeClient{}
	submitter := &fakeSubmitter{}
	provider := &fakeProvider{micro: 0.50}
	d := newTestDaemon(client, submitter, &fakeView{held: 600}, provider)
	require.NoError(t, d.Start(t.Context()))
	defer func() { _ = d.Stop() }()

	req := testRequest()
	req.Params.MaxRebalancesPerDay = 1
	_, err := d.AddTokenMonitor(t.Context(), req)
	require.NoError(t, err)

	provider.set(0.40)
	require.Eventually(t, func() bool { return submitter.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Another large move; the daily budget is spent.
	provider.set(0.30)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, submitter.count())
}

func TestSessionExpiryCancelsOrders(t *testing.T) {
	client := &fakeClient{
		open: []exchange.OpenOrder{{ExchangeOrderID: "x1", TokenID: "tok-1"}},
	}
	submitter := &fakeSubmitter{}
	provider := &fakeProvider{micro: 0.50}
	d := newTestDaemon(client, submitter, &fakeView{held: 1_000_000}, provider)
	require.NoError(t, d.Start(t.Context()))
	defer func() { _ = d.Stop() }()

	req := testRequest()
	req.Params.MonitorDuration = 30 * time.Millisecond
	_, err := d.AddTokenMonitor(t.Context(), req)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return client.cancelCount() >= 1 }, 2*time.Second, 10*time.Millisecond)

	sessions := d.ActiveSessions()
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Active)
}
