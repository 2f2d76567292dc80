package main

import (
	"context"
	"flag"
	"os"
	"sync"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"gopkg.in/yaml.v3"

	"github.com/youturn45/polymarket-tools/internal/bus"
	"github.com/youturn45/polymarket-tools/internal/daemon"
	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/exchange/clob"
	"github.com/youturn45/polymarket-tools/internal/market"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
	"github.com/youturn45/polymarket-tools/internal/monitor"
	"github.com/youturn45/polymarket-tools/internal/ops"
	"github.com/youturn45/polymarket-tools/internal/portfolio"
	"github.com/youturn45/polymarket-tools/internal/store"
	"github.com/youturn45/polymarket-tools/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	ordersPath := flag.String("orders", "", "YAML file of orders and monitor sessions to submit at startup")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed: %v", err)
		os.Exit(1)
	}

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed: %v", err)
			os.Exit(1)
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clobClient := clob.New(clob.Config{
		BaseURL: cfg.Exchange.BaseURL,
		APIKey:  cfg.Exchange.APIKey,
		Timeout: cfg.Exchange.Timeout,
	})
	client := exchange.NewRetryClient(clobClient, exchange.DefaultBackoff(), cfg.Exchange.MaxAttempts)

	events := bus.New(cfg.Bus.Capacity)
	go events.Run(ctx)

	var orderStore *store.Store
	if cfg.Store.Enabled {
		db, err := store.Open(cfg.Store.Connection)
		if err != nil {
			logs.Errorf("store open failed: %v", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close(db) }()

		orderStore = store.New(db)
		if err := orderStore.Migrate(); err != nil {
			logs.Errorf("store migrate failed: %v", err)
			os.Exit(1)
		}
		store.Attach(events, orderStore)
		reportActiveOrders(orderStore)
	}

	cache := portfolio.NewCache(client, clobClient, cfg.Portfolio.RefreshInterval)
	if err := cache.Refresh(ctx); err != nil {
		logs.Warnf("initial portfolio refresh failed: %v", err)
	}
	go cache.Run(ctx)

	monitors := newMonitorRegistry(ctx, client, cfg.Market, orderStore)
	router := strategy.NewRouter(client, cache, events, monitors.provider, cfg.Executor.PollInterval, cfg.Executor.FillTimeout)

	orderDaemon := daemon.New(daemon.Config{
		QueueCapacity: cfg.Daemon.QueueCapacity,
		MaxConcurrent: cfg.Daemon.MaxConcurrent,
		StopGrace:     cfg.Daemon.StopGrace,
	}, router, events)
	if err := orderDaemon.Start(ctx); err != nil {
		logs.Errorf("order daemon start failed: %v", err)
		os.Exit(1)
	}

	kellyMonitor := monitor.NewKellyMonitorDaemon(client, orderDaemon, cache, monitors.provider)
	if err := kellyMonitor.Start(ctx); err != nil {
		logs.Errorf("kelly monitor start failed: %v", err)
		os.Exit(1)
	}

	if *ordersPath != "" {
		if err := submitFromFile(ctx, *ordersPath, orderDaemon, kellyMonitor); err != nil {
			logs.Errorf("submission file failed: %v", err)
		}
	}

	<-sys.Shutdown()
	logs.Info("shutdown signal received")

	if err := kellyMonitor.Stop(); err != nil {
		logs.Warnf("kelly monitor stop: %v", err)
	}
	if err := orderDaemon.Stop(); err != nil {
		logs.Warnf("order daemon stop: %v", err)
	}
	cancel()
	events.Close()
}

func reportActiveOrders(s *store.Store) {
	orders, err := s.LoadActiveOrders()
	if err != nil {
		logs.Warnf("load active orders failed: %v", err)
		return
	}
	for _, o := range orders {
		logs.Warnf("order %s was %s at last shutdown (filled %d/%d), not resumed",
			o.OrderID, o.Status, o.FilledAmount, o.TotalSize)
	}
}

// monitorRegistry caches one market monitor per token and keeps its poll
// loop running for the life of the process.
type monitorRegistry struct {
	ctx    context.Context
	client exchange.Client
	cfg    ops.MarketConfig
	store  market.SnapshotStore

	mu       sync.Mutex
	monitors map[string]*market.Monitor
}

func newMonitorRegistry(ctx context.Context, client exchange.Client, cfg ops.MarketConfig, snapshotStore *store.Store) *monitorRegistry {
	r := &monitorRegistry{
		ctx:      ctx,
		client:   client,
		cfg:      cfg,
		monitors: make(map[string]*market.Monitor),
	}
	if snapshotStore != nil {
		r.store = snapshotStore
	}
	return r
}

func (r *monitorRegistry) provider(tokenID string) market.SnapshotProvider {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.monitors[tokenID]; ok {
		return m
	}
	m := market.NewMonitor(r.client, market.Config{
		TokenID:      tokenID,
		BandWidthBps: r.cfg.BandWidthBps,
		DepthLevels:  r.cfg.DepthLevels,
		PollInterval: r.cfg.PollInterval,
		Store:        r.store,
	})
	r.monitors[tokenID] = m
	go m.Run(r.ctx)
	return m
}

// submission is the YAML layout of the startup orders file.
type submission struct {
	Orders []orderSpec `yaml:"orders"`

	Monitors []monitorSpec `yaml:"monitors"`
}

type orderSpec struct {
	TokenID   string        `yaml:"tokenId"`
	MarketID  string        `yaml:"marketId"`
	Side      string        `yaml:"side"`
	Strategy  string        `yaml:"strategy"`
	MinPrice  float64       `yaml:"minPrice"`
	MaxPrice  float64       `yaml:"maxPrice"`
	TotalSize int64         `yaml:"totalSize"`
	Timeout   time.Duration `yaml:"timeout"`

	Iceberg    *model.IcebergParams    `yaml:"iceberg"`
	MicroPrice *model.MicroPriceParams `yaml:"microPrice"`
	Kelly      *model.KellyParams      `yaml:"kelly"`
}

type monitorSpec struct {
	TokenID  string                   `yaml:"tokenId"`
	MarketID string                   `yaml:"marketId"`
	Side     string                   `yaml:"side"`
	MinPrice float64                  `yaml:"minPrice"`
	MaxPrice float64                  `yaml:"maxPrice"`
	Params   model.KellyMonitorParams `yaml:"params"`
}

func submitFromFile(ctx context.Context, path string, d *daemon.OrderDaemon, km *monitor.KellyMonitorDaemon) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sub submission
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return err
	}

	for _, spec := range sub.Orders {
		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		req := model.OrderRequest{
			TokenID:    spec.TokenID,
			MarketID:   spec.MarketID,
			Side:       enum.ParseSide(spec.Side),
			Strategy:   enum.ParseStrategy(spec.Strategy),
			MinPrice:   spec.MinPrice,
			MaxPrice:   spec.MaxPrice,
			TotalSize:  spec.TotalSize,
			Iceberg:    spec.Iceberg,
			MicroPrice: spec.MicroPrice,
			Kelly:      spec.Kelly,
			Urgency:    enum.UrgencyMedium,
			Timeout:    timeout,
		}
		orderID, err := d.Submit(req)
		if err != nil {
			logs.Errorf("submit %s order for %s failed: %v", spec.Strategy, spec.TokenID, err)
			continue
		}
		logs.Infof("submitted order %s", orderID)
	}

	for _, spec := range sub.Monitors {
		sessionID, err := km.AddTokenMonitor(ctx, monitor.Request{
			TokenID:  spec.TokenID,
			MarketID: spec.MarketID,
			Side:     enum.ParseSide(spec.Side),
			MinPrice: spec.MinPrice,
			MaxPrice: spec.MaxPrice,
			Params:   spec.Params,
		})
		if err != nil {
			logs.Errorf("monitor session for %s failed: %v", spec.TokenID, err)
			continue
		}
		logs.Infof("monitoring session %s started", sessionID)
	}
	return nil
}
