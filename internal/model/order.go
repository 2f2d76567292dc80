package model

import (
	"time"

	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// Order is one logical trading intent. It is owned exclusively by the
// execution task driving it; other components only ever see read-only
// snapshots carried on events.
type Order struct {
	OrderID  string
	TokenID  string
	MarketID string

	Side      enum.Side
	TotalSize int64

	TargetPrice float64
	MaxPrice    float64
	MinPrice    float64

	Urgency enum.Urgency
	Status  enum.Status

	FilledAmount    int64
	RemainingAmount int64

	AdjustmentCount int
	UndercutCount   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder builds an order in the queued state with remaining == total.
func NewOrder(orderID, tokenID, marketID string, side enum.Side, totalSize int64, targetPrice, minPrice, maxPrice float64, urgency enum.Urgency) *Order {
	now := time.Now()
	return &Order{
		OrderID:         orderID,
		TokenID:         tokenID,
		MarketID:        marketID,
		Side:            side,
		TotalSize:       totalSize,
		TargetPrice:     targetPrice,
		MaxPrice:        maxPrice,
		MinPrice:        minPrice,
		Urgency:         urgency,
		Status:          enum.StatusQueued,
		RemainingAmount: totalSize,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// UpdateStatus moves the order to a new status and bumps the timestamp.
func (o *Order) UpdateStatus(status enum.Status) {
	o.Status = status
	o.UpdatedAt = time.Now()
}

// RecordFill applies a fill amount, keeping filled + remaining == total.
// Remaining is floored at zero so an exchange overfill cannot drive it
// negative. Status follows the fill state.
func (o *Order) RecordFill(amount int64) {
	o.FilledAmount += amount
	o.RemainingAmount = o.TotalSize - o.FilledAmount
	if o.RemainingAmount < 0 {
		o.RemainingAmount = 0
	}
	o.UpdatedAt = time.Now()

	if o.RemainingAmount == 0 {
		o.Status = enum.StatusCompleted
	} else if o.FilledAmount > 0 {
		o.Status = enum.StatusPartiallyFilled
	}
}

// Resize replaces the order's total while no fills are attributed to the
// change. The Kelly strategy uses this when recalculation re-derives the
// incremental size.
func (o *Order) Resize(totalSize int64) {
	o.TotalSize = totalSize
	o.RemainingAmount = totalSize - o.FilledAmount
	if o.RemainingAmount < 0 {
		o.RemainingAmount = 0
	}
	o.UpdatedAt = time.Now()
}

// RecordAdjustment counts a price replacement.
func (o *Order) RecordAdjustment() {
	o.AdjustmentCount++
	o.UpdatedAt = time.Now()
}

// RecordUndercut counts an undercut detection.
func (o *Order) RecordUndercut() {
	o.UndercutCount++
	o.UpdatedAt = time.Now()
}

// Snapshot returns a copy safe to hand across goroutine boundaries.
func (o *Order) Snapshot() *Order {
	cp := *o
	return &cp
}
