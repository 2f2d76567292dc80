package ops

import (
	"os"
	"time"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"github.com/youturn45/polymarket-tools/internal/daemon"
	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/store"
)

// Config is the full service configuration, loaded from YAML with
// secrets overridable from the environment.
type Config struct {
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Bus       BusConfig       `yaml:"bus"`
	Market    MarketConfig    `yaml:"market"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Store     StoreConfig     `yaml:"store"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// ExchangeConfig points at the CLOB REST endpoint.
type ExchangeConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"apiKey"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// DaemonConfig tunes the order daemon.
type DaemonConfig struct {
	QueueCapacity int           `yaml:"queueCapacity"`
	MaxConcurrent int           `yaml:"maxConcurrent"`
	StopGrace     time.Duration `yaml:"stopGrace"`
}

// BusConfig tunes the event bus.
type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

// MarketConfig tunes per-token market monitors.
type MarketConfig struct {
	BandWidthBps int           `yaml:"bandWidthBps"`
	DepthLevels  int           `yaml:"depthLevels"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// PortfolioConfig tunes the position cache.
type PortfolioConfig struct {
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// ExecutorConfig tunes single and iceberg execution.
type ExecutorConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	FillTimeout  time.Duration `yaml:"fillTimeout"`
}

// StoreConfig enables and points at the PostgreSQL order store.
type StoreConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Connection store.ConnOption `yaml:"connection"`
}

// ProfilingConfig enables continuous profiling.
type ProfilingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"serverAddress"`
	AppName       string `yaml:"appName"`
}

// Default returns the configuration the service runs with when no file
// is given.
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
		},
		Daemon: DaemonConfig{
			QueueCapacity: daemon.DefaultConfig().QueueCapacity,
			MaxConcurrent: daemon.DefaultConfig().MaxConcurrent,
			StopGrace:     daemon.DefaultConfig().StopGrace,
		},
		Bus: BusConfig{Capacity: 1000},
		Market: MarketConfig{
			BandWidthBps: 50,
			DepthLevels:  5,
			PollInterval: 10 * time.Second,
		},
		Portfolio: PortfolioConfig{RefreshInterval: 30 * time.Second},
		Executor: ExecutorConfig{
			PollInterval: 2 * time.Second,
			FillTimeout:  60 * time.Second,
		},
		Profiling: ProfilingConfig{AppName: "polymarket.order.daemon"},
	}
}

// Load reads the YAML file, fills unset fields with defaults, applies
// environment overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config")
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides secrets so they never need to live in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("POLYMARKET_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("POLYMARKET_CLOB_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
	if v := os.Getenv("POLYMARKET_PG_PASSWORD"); v != "" {
		c.Store.Connection.Password = v
	}
	if v := os.Getenv("POLYMARKET_PG_CONN"); v != "" {
		c.Store.Connection.ConnString = v
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.Exchange.Timeout <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "exchange timeout must be positive")
	}
	if c.Exchange.MaxAttempts < 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "exchange max attempts must be at least 1")
	}
	if c.Daemon.QueueCapacity <= 0 || c.Daemon.MaxConcurrent <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "daemon limits must be positive")
	}
	if c.Bus.Capacity <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "bus capacity must be positive")
	}
	if c.Market.BandWidthBps <= 0 || c.Market.BandWidthBps > 10000 {
		return errors.Wrap(exception.ErrInvalidRequest, "band width bps must be in (0,10000]")
	}
	if c.Market.DepthLevels <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "depth levels must be positive")
	}
	if c.Market.PollInterval <= 0 || c.Portfolio.RefreshInterval <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "poll intervals must be positive")
	}
	if c.Store.Enabled && c.Store.Connection.Database == "" && c.Store.Connection.ConnString == "" {
		return errors.Wrap(exception.ErrInvalidRequest, "store enabled without a database")
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return errors.Wrap(exception.ErrInvalidRequest, "profiling enabled without a server address")
	}
	return nil
}
