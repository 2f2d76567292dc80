package model

import (
	"time"

	"github.com/yanun0323/errors"

	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// IcebergParams controls tranche splitting for iceberg execution.
type IcebergParams struct {
	InitialTrancheSize   int64   `yaml:"initialTrancheSize" json:"initial_tranche_size"`
	MinTrancheSize       int64   `yaml:"minTrancheSize" json:"min_tranche_size"`
	MaxTrancheSize       int64   `yaml:"maxTrancheSize" json:"max_tranche_size"`
	TrancheRandomization float64 `yaml:"trancheRandomization" json:"tranche_randomization"`
}

// DefaultIcebergParams mirrors the defaults used by the daemon when a
// request selects iceberg without tuning it.
func DefaultIcebergParams() IcebergParams {
	return IcebergParams{
		InitialTrancheSize:   50,
		MinTrancheSize:       10,
		MaxTrancheSize:       200,
		TrancheRandomization: 0.2,
	}
}

func (p IcebergParams) Validate() error {
	if p.InitialTrancheSize <= 0 || p.MinTrancheSize <= 0 || p.MaxTrancheSize <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "tranche sizes must be positive")
	}
	if p.MinTrancheSize > p.MaxTrancheSize {
		return errors.Wrap(exception.ErrInvalidRequest, "min tranche size exceeds max")
	}
	if p.TrancheRandomization < 0 || p.TrancheRandomization > 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "tranche randomization must be in [0,1]")
	}
	return nil
}

// MicroPriceParams controls the adaptive replace-at-fair-value loop.
type MicroPriceParams struct {
	ThresholdBps       int           `yaml:"thresholdBps" json:"threshold_bps"`
	CheckInterval      time.Duration `yaml:"checkInterval" json:"check_interval"`
	MaxAdjustments     int           `yaml:"maxAdjustments" json:"max_adjustments"`
	AggressionLimitBps int           `yaml:"aggressionLimitBps" json:"aggression_limit_bps"`
}

func DefaultMicroPriceParams() MicroPriceParams {
	return MicroPriceParams{
		ThresholdBps:       50,
		CheckInterval:      2 * time.Second,
		MaxAdjustments:     10,
		AggressionLimitBps: 100,
	}
}

// ThresholdFraction converts the band width from basis points.
func (p MicroPriceParams) ThresholdFraction() float64 {
	return float64(p.ThresholdBps) / 10000
}

// AggressionLimitFraction converts the aggression limit from basis points.
func (p MicroPriceParams) AggressionLimitFraction() float64 {
	return float64(p.AggressionLimitBps) / 10000
}

func (p MicroPriceParams) Validate() error {
	if p.ThresholdBps < 1 || p.ThresholdBps > 10000 {
		return errors.Wrap(exception.ErrInvalidRequest, "threshold bps must be in [1,10000]")
	}
	if p.CheckInterval <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "check interval must be positive")
	}
	if p.MaxAdjustments < 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "max adjustments must be at least 1")
	}
	if p.AggressionLimitBps < 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "aggression limit bps must be positive")
	}
	return nil
}

// KellyParams controls risk-based position sizing. Execution itself is
// delegated to the nested micro-price parameters.
type KellyParams struct {
	WinProbability     float64       `yaml:"winProbability" json:"win_probability"`
	KellyFraction      float64       `yaml:"kellyFraction" json:"kelly_fraction"`
	MaxPositionSize    int64         `yaml:"maxPositionSize" json:"max_position_size"`
	Bankroll           float64       `yaml:"bankroll" json:"bankroll"`
	RecalcInterval     time.Duration `yaml:"recalcInterval" json:"recalculate_interval"`
	RecalcThresholdPct float64       `yaml:"recalcThresholdPct" json:"recalc_threshold_pct"`

	// EdgeUpperBound caps the perceived edge before sizing; zero disables
	// the cap.
	EdgeUpperBound float64 `yaml:"edgeUpperBound" json:"edge_upper_bound"`

	MicroPrice MicroPriceParams `yaml:"microPrice" json:"micro_price_params"`
}

func DefaultKellyParams() KellyParams {
	return KellyParams{
		KellyFraction:      0.25,
		RecalcInterval:     5 * time.Second,
		RecalcThresholdPct: 0.05,
		MicroPrice:         DefaultMicroPriceParams(),
	}
}

func (p KellyParams) Validate() error {
	if p.WinProbability < 0 || p.WinProbability > 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "win probability must be in [0,1]")
	}
	if p.KellyFraction < 0 || p.KellyFraction > 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "kelly fraction must be in [0,1]")
	}
	if p.MaxPositionSize <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "max position size must be positive")
	}
	if p.Bankroll <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "bankroll must be positive")
	}
	if p.RecalcInterval <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "recalculate interval must be positive")
	}
	if p.RecalcThresholdPct <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "recalc threshold must be positive")
	}
	if p.EdgeUpperBound < 0 || p.EdgeUpperBound > 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "edge upper bound must be in [0,1]")
	}
	return p.MicroPrice.Validate()
}

// KellyMonitorParams controls a long-duration rebalancing session.
type KellyMonitorParams struct {
	MonitorDuration          time.Duration `yaml:"monitorDuration" json:"monitor_duration"`
	PriceChangeThresholdPct  float64       `yaml:"priceChangeThresholdPct" json:"price_change_threshold_pct"`
	PositionDeviationPct     float64       `yaml:"positionDeviationPct" json:"position_deviation_threshold_pct"`
	CheckInterval            time.Duration `yaml:"checkInterval" json:"check_interval"`
	PeriodicRebalanceEvery   time.Duration `yaml:"periodicRebalanceEvery" json:"periodic_check_interval"`
	MinRebalanceShares       int64         `yaml:"minRebalanceShares" json:"min_rebalance_shares"`
	MaxRebalancesPerDay      int           `yaml:"maxRebalancesPerDay" json:"max_rebalances_per_day"`
	CancelOrdersOnCompletion bool          `yaml:"cancelOrdersOnCompletion" json:"cancel_orders_on_completion"`

	Kelly KellyParams `yaml:"kelly" json:"kelly_params"`
}

func DefaultKellyMonitorParams() KellyMonitorParams {
	return KellyMonitorParams{
		MonitorDuration:          24 * time.Hour,
		PriceChangeThresholdPct:  0.05,
		PositionDeviationPct:     0.10,
		CheckInterval:            60 * time.Second,
		PeriodicRebalanceEvery:   60 * time.Minute,
		MinRebalanceShares:       10,
		MaxRebalancesPerDay:      6,
		CancelOrdersOnCompletion: true,
		Kelly:                    DefaultKellyParams(),
	}
}

func (p KellyMonitorParams) Validate() error {
	if p.MonitorDuration <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "monitor duration must be positive")
	}
	if p.PriceChangeThresholdPct <= 0 || p.PositionDeviationPct <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "trigger thresholds must be positive")
	}
	if p.CheckInterval <= 0 || p.PeriodicRebalanceEvery <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "check intervals must be positive")
	}
	if p.MinRebalanceShares < 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "min rebalance shares must not be negative")
	}
	if p.MaxRebalancesPerDay < 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "max rebalances per day must be at least 1")
	}
	return p.Kelly.Validate()
}

// OrderRequest is an immutable submission to the order daemon. Exactly one
// strategy parameter block must be set and it must match Strategy; Kelly
// derives its own size so TotalSize stays zero for it.
type OrderRequest struct {
	TokenID  string
	MarketID string
	Side     enum.Side
	Strategy enum.Strategy

	MinPrice float64
	MaxPrice float64

	TotalSize int64

	Iceberg    *IcebergParams
	MicroPrice *MicroPriceParams
	Kelly      *KellyParams

	Urgency enum.Urgency
	Timeout time.Duration
}

// Validate rejects malformed requests before they reach the queue.
func (r OrderRequest) Validate() error {
	if r.TokenID == "" {
		return errors.Wrap(exception.ErrInvalidRequest, "token id is empty")
	}
	if !r.Side.IsAvailable() {
		return errors.Wrap(exception.ErrInvalidRequest, "side is unknown")
	}
	if !r.Strategy.IsAvailable() {
		return errors.Wrap(exception.ErrInvalidRequest, "strategy is unknown")
	}
	if r.MinPrice < 0 || r.MinPrice > 1 || r.MaxPrice < 0 || r.MaxPrice > 1 {
		return errors.Wrap(exception.ErrInvalidRequest, "prices must be in [0,1]")
	}
	if r.MinPrice >= r.MaxPrice {
		return errors.Wrap(exception.ErrInvalidRequest, "min price must be less than max price")
	}
	if r.Timeout <= 0 {
		return errors.Wrap(exception.ErrInvalidRequest, "timeout must be positive")
	}

	if err := r.validateStrategyParams(); err != nil {
		return err
	}
	return nil
}

func (r OrderRequest) validateStrategyParams() error {
	switch r.Strategy {
	case enum.StrategyIceberg:
		if r.Iceberg == nil {
			return errors.Wrap(exception.ErrInvalidRequest, "iceberg params required")
		}
		if r.MicroPrice != nil || r.Kelly != nil {
			return errors.Wrap(exception.ErrInvalidRequest, "only iceberg params may be set")
		}
		if r.TotalSize <= 0 {
			return errors.Wrap(exception.ErrInvalidRequest, "total size required for iceberg")
		}
		return r.Iceberg.Validate()
	case enum.StrategyMicroPrice:
		if r.MicroPrice == nil {
			return errors.Wrap(exception.ErrInvalidRequest, "micro-price params required")
		}
		if r.Iceberg != nil || r.Kelly != nil {
			return errors.Wrap(exception.ErrInvalidRequest, "only micro-price params may be set")
		}
		if r.TotalSize <= 0 {
			return errors.Wrap(exception.ErrInvalidRequest, "total size required for micro-price")
		}
		return r.MicroPrice.Validate()
	case enum.StrategyKelly:
		if r.Kelly == nil {
			return errors.Wrap(exception.ErrInvalidRequest, "kelly params required")
		}
		if r.Iceberg != nil || r.MicroPrice != nil {
			return errors.Wrap(exception.ErrInvalidRequest, "only kelly params may be set")
		}
		if r.TotalSize != 0 {
			return errors.Wrap(exception.ErrInvalidRequest, "total size is derived for kelly")
		}
		return r.Kelly.Validate()
	default:
		return exception.ErrUnknownStrategy
	}
}
