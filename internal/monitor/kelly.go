package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
	"github.com/youturn45/polymarket-tools/internal/portfolio"
	"github.com/youturn45/polymarket-tools/internal/strategy"
)

// OrderSubmitter accepts order requests; the order daemon implements it.
type OrderSubmitter interface {
	Submit(req model.OrderRequest) (string, error)
}

// Request registers one token for long-duration Kelly rebalancing.
type Request struct {
	TokenID  string
	MarketID string
	Side     enum.Side
	MinPrice float64
	MaxPrice float64
	Params   model.KellyMonitorParams
}

// Session is the live state of one monitored token. All fields are
// guarded by the daemon mutex.
type Session struct {
	SessionID string
	TokenID   string
	MarketID  string
	Side      enum.Side
	MinPrice  float64
	MaxPrice  float64
	Params    model.KellyMonitorParams

	StartTime      time.Time
	EndTime        time.Time
	ReferencePrice float64
	LastRebalance  time.Time
	LastCheck      time.Time
	Active         bool

	rebalances []time.Time
}

// SessionInfo is the read-only view handed out by ActiveSessions.
type SessionInfo struct {
	SessionID      string
	TokenID        string
	Side           enum.Side
	StartTime      time.Time
	EndTime        time.Time
	ReferencePrice float64
	RebalanceCount int
	Active         bool
}

// KellyMonitorDaemon watches positions over hours or days and submits
// corrective buy orders through the order daemon when the market or the
// position drifts from the Kelly-optimal size. It never sells; reducing
// a position is a human decision.
type KellyMonitorDaemon struct {
	client    exchange.Client
	submitter OrderSubmitter
	view      portfolio.View
	monitors  strategy.MonitorFactory

	mu       sync.Mutex
	running  bool
	sessions map[string]*Session

	// kick wakes the loop so a freshly added session's check interval
	// takes effect immediately instead of after the current sleep.
	kick chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewKellyMonitorDaemon builds a stopped monitor daemon.
func NewKellyMonitorDaemon(client exchange.Client, submitter OrderSubmitter, view portfolio.View, monitors strategy.MonitorFactory) *KellyMonitorDaemon {
	return &KellyMonitorDaemon{
		client:    client,
		submitter: submitter,
		view:      view,
		monitors:  monitors,
		sessions:  make(map[string]*Session),
		kick:      make(chan struct{}, 1),
	}
}

// Start launches the check loop.
func (d *KellyMonitorDaemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return exception.ErrMonitorAlreadyRunning
	}
	d.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.loop(loopCtx)

	logs.Info("kelly monitor daemon started")
	return nil
}

// Stop halts checking. Sessions stay registered so a restart resumes them.
func (d *KellyMonitorDaemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return exception.ErrMonitorNotRunning
	}
	d.running = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	logs.Info("kelly monitor daemon stopped")
	return nil
}

// AddTokenMonitor registers a session. One active session per token; the
// reference price is captured from the market at registration.
func (d *KellyMonitorDaemon) AddTokenMonitor(ctx context.Context, req Request) (string, error) {
	if err := req.Params.Validate(); err != nil {
		return "", err
	}

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return "", exception.ErrMonitorNotRunning
	}
	for _, s := range d.sessions {
		if s.Active && s.TokenID == req.TokenID {
			d.mu.Unlock()
			return "", exception.ErrTokenAlreadyMonitored
		}
	}
	d.mu.Unlock()

	snapshot, err := d.monitors(req.TokenID).GetMarketSnapshot(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now()
	session := &Session{
		SessionID:      uuid.NewString()[:8],
		TokenID:        req.TokenID,
		MarketID:       req.MarketID,
		Side:           req.Side,
		MinPrice:       req.MinPrice,
		MaxPrice:       req.MaxPrice,
		Params:         req.Params,
		StartTime:      now,
		EndTime:        now.Add(req.Params.MonitorDuration),
		ReferencePrice: snapshot.MicroPrice,
		LastRebalance:  now,
		Active:         true,
	}

	d.mu.Lock()
	d.sessions[session.SessionID] = session
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}

	logs.Infof("session %s monitoring %s until %s, reference price %.4f",
		session.SessionID, req.TokenID, session.EndTime.Format(time.RFC3339), session.ReferencePrice)
	return session.SessionID, nil
}

// RemoveTokenMonitor deactivates the active session for a token.
func (d *KellyMonitorDaemon) RemoveTokenMonitor(tokenID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if s.Active && s.TokenID == tokenID {
			s.Active = false
			logs.Infof("session %s for %s removed", s.SessionID, tokenID)
			return nil
		}
	}
	return exception.ErrSessionNotFound
}

// ActiveSessions returns the current sessions, active first.
func (d *KellyMonitorDaemon) ActiveSessions() []SessionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SessionInfo, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, SessionInfo{
			SessionID:      s.SessionID,
			TokenID:        s.TokenID,
			Side:           s.Side,
			StartTime:      s.StartTime,
			EndTime:        s.EndTime,
			ReferencePrice: s.ReferencePrice,
			RebalanceCount: len(s.rebalances),
			Active:         s.Active,
		})
	}
	return out
}

// Stats summarizes monitor activity.
func (d *KellyMonitorDaemon) Stats() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	active, rebalances := 0, 0
	for _, s := range d.sessions {
		if s.Active {
			active++
		}
		rebalances += len(s.rebalances)
	}
	return map[string]any{
		"running":          d.running,
		"sessions":         len(d.sessions),
		"active_sessions":  active,
		"total_rebalances": rebalances,
	}
}

// loop wakes at the shortest check interval any session asks for and
// checks every session due for one.
func (d *KellyMonitorDaemon) loop(ctx context.Context) {
	defer d.wg.Done()

	for {
		interval := d.minCheckInterval()
		select {
		case <-ctx.Done():
			return
		case <-d.kick:
			continue
		case <-time.After(interval):
		}

		for _, session := range d.dueSessions() {
			d.checkSession(ctx, session)
		}
	}
}

func (d *KellyMonitorDaemon) minCheckInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	interval := 60 * time.Second
	for _, s := range d.sessions {
		if s.Active && s.Params.CheckInterval < interval {
			interval = s.Params.CheckInterval
		}
	}
	return interval
}

func (d *KellyMonitorDaemon) dueSessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var due []*Session
	for _, s := range d.sessions {
		if s.Active && now.Sub(s.LastCheck) >= s.Params.CheckInterval {
			s.LastCheck = now
			due = append(due, s)
		}
	}
	return due
}

// checkSession expires the session or evaluates its rebalance triggers
// in priority order, acting on the first that fires.
func (d *KellyMonitorDaemon) checkSession(ctx context.Context, s *Session) {
	if time.Now().After(s.EndTime) {
		d.expireSession(s)
		return
	}

	snapshot, err := d.monitors(s.TokenID).GetMarketSnapshot(ctx)
	if err != nil {
		logs.Warnf("session %s snapshot failed: %v", s.SessionID, err)
		return
	}

	held, pending := d.view.Exposure(s.TokenID)
	price := snapshot.MicroPrice

	kelly := s.Params.Kelly
	fraction := strategy.Fraction(kelly.WinProbability, price, s.Side, kelly.EdgeUpperBound)
	optimal := strategy.OptimalShares(kelly.Bankroll, fraction, kelly.KellyFraction, price, kelly.MaxPositionSize)
	delta := strategy.IncrementalShares(optimal, held, pending)

	trigger := d.trigger(s, price, held, optimal, delta)
	if trigger == "" {
		return
	}

	logs.Infof("session %s trigger %q: price %.4f (ref %.4f), held %d, optimal %d, delta %d",
		s.SessionID, trigger, price, s.ReferencePrice, held, optimal, delta)
	d.rebalance(ctx, s, price, delta, trigger)
}

// trigger returns the name of the first firing trigger, empty when none.
func (d *KellyMonitorDaemon) trigger(s *Session, price float64, held, optimal, delta int64) string {
	if s.ReferencePrice > 0 {
		movePct := math.Abs(price-s.ReferencePrice) / s.ReferencePrice
		if movePct >= s.Params.PriceChangeThresholdPct {
			return "price_change"
		}
	}

	if optimal > 0 {
		deviationPct := math.Abs(float64(optimal-held)) / float64(optimal)
		if deviationPct >= s.Params.PositionDeviationPct {
			return "position_deviation"
		}
	}

	if time.Since(s.LastRebalance) >= s.Params.PeriodicRebalanceEvery && delta >= s.Params.MinRebalanceShares {
		return "periodic"
	}
	return ""
}

// rebalance cancels the token's resting orders and submits a corrective
// micro-price buy for the delta. Oversized positions are left alone.
func (d *KellyMonitorDaemon) rebalance(ctx context.Context, s *Session, price float64, delta int64, trigger string) {
	if delta < s.Params.MinRebalanceShares || delta <= 0 {
		logs.Infof("session %s delta %d below minimum %d, reference updated only",
			s.SessionID, delta, s.Params.MinRebalanceShares)
		d.mu.Lock()
		s.ReferencePrice = price
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	recent := d.recentRebalances(s)
	d.mu.Unlock()
	if recent >= s.Params.MaxRebalancesPerDay {
		logs.Warnf("session %s hit daily rebalance limit (%d), skipping %s trigger",
			s.SessionID, s.Params.MaxRebalancesPerDay, trigger)
		return
	}

	d.cancelTokenOrders(ctx, s.TokenID)

	microParams := s.Params.Kelly.MicroPrice
	req := model.OrderRequest{
		TokenID:    s.TokenID,
		MarketID:   s.MarketID,
		Side:       s.Side,
		Strategy:   enum.StrategyMicroPrice,
		MinPrice:   s.MinPrice,
		MaxPrice:   s.MaxPrice,
		TotalSize:  delta,
		MicroPrice: &microParams,
		Urgency:    enum.UrgencyMedium,
		Timeout:    10 * time.Minute,
	}

	orderID, err := d.submitter.Submit(req)
	if err != nil {
		logs.Errorf("session %s rebalance submit failed: %v", s.SessionID, err)
		return
	}

	now := time.Now()
	d.mu.Lock()
	s.ReferencePrice = price
	s.LastRebalance = now
	s.rebalances = append(s.rebalances, now)
	d.mu.Unlock()

	logs.Infof("session %s rebalanced via order %s: +%d shares (%s)", s.SessionID, orderID, delta, trigger)
}

// recentRebalances counts rebalances in the trailing 24 hours and prunes
// older entries. Caller holds the mutex.
func (d *KellyMonitorDaemon) recentRebalances(s *Session) int {
	cutoff := time.Now().Add(-24 * time.Hour)
	kept := s.rebalances[:0]
	for _, t := range s.rebalances {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.rebalances = kept
	return len(kept)
}

func (d *KellyMonitorDaemon) expireSession(s *Session) {
	d.mu.Lock()
	s.Active = false
	cancelOrders := s.Params.CancelOrdersOnCompletion
	d.mu.Unlock()

	logs.Infof("session %s for %s expired after %d rebalances", s.SessionID, s.TokenID, len(s.rebalances))
	if cancelOrders {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		d.cancelTokenOrders(ctx, s.TokenID)
	}
}

func (d *KellyMonitorDaemon) cancelTokenOrders(ctx context.Context, tokenID string) {
	open, err := d.client.GetOpenOrders(ctx, tokenID)
	if err != nil {
		logs.Warnf("fetch open orders for %s failed: %v", tokenID, err)
		return
	}
	for _, o := range open {
		if err := d.client.CancelOrder(ctx, o.ExchangeOrderID); err != nil {
			logs.Warnf("cancel %s failed: %v", o.ExchangeOrderID, err)
		}
	}
}
