package fill

import "time"

// TrancheFill records one tranche's attempted and filled size.
type TrancheFill struct {
	TrancheNumber int
	Size          int64
	Filled        int64
	Price         float64
	Timestamp     time.Time
}

// Tracker accumulates partial fills across the tranches of one logical
// order. All derived quantities are computed from the record list on
// read; there is no cached state to invalidate.
type Tracker struct {
	totalSize int64
	fills     []TrancheFill
}

// NewTracker tracks fills toward the given total size.
func NewTracker(totalSize int64) *Tracker {
	return &Tracker{totalSize: totalSize}
}

// RecordTrancheFill appends one tranche's result.
func (t *Tracker) RecordTrancheFill(trancheNumber int, size, filled int64, price float64) {
	t.fills = append(t.fills, TrancheFill{
		TrancheNumber: trancheNumber,
		Size:          size,
		Filled:        filled,
		Price:         price,
		Timestamp:     time.Now(),
	})
}

// TotalSize returns the tracked order size.
func (t *Tracker) TotalSize() int64 {
	return t.totalSize
}

// TotalFilled sums fills across all tranches.
func (t *Tracker) TotalFilled() int64 {
	var total int64
	for _, f := range t.fills {
		total += f.Filled
	}
	return total
}

// TotalRemaining is floored at zero even when overfilled.
func (t *Tracker) TotalRemaining() int64 {
	remaining := t.totalSize - t.TotalFilled()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AverageFillPrice is the volume-weighted average price, zero with no
// fills.
func (t *Tracker) AverageFillPrice() float64 {
	filled := t.TotalFilled()
	if filled == 0 {
		return 0
	}
	var value float64
	for _, f := range t.fills {
		value += float64(f.Filled) * f.Price
	}
	return value / float64(filled)
}

// FillRate returns filled/total in [0,1]; zero total yields zero.
func (t *Tracker) FillRate() float64 {
	if t.totalSize == 0 {
		return 0
	}
	return float64(t.TotalFilled()) / float64(t.totalSize)
}

// TrancheCount returns the number of recorded tranches.
func (t *Tracker) TrancheCount() int {
	return len(t.fills)
}

// IsComplete is tolerant of overfill.
func (t *Tracker) IsComplete() bool {
	return t.TotalFilled() >= t.totalSize
}

// Fills returns a copy of the tranche records.
func (t *Tracker) Fills() []TrancheFill {
	out := make([]TrancheFill, len(t.fills))
	copy(out, t.fills)
	return out
}
