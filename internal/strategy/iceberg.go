package strategy

import (
	"math/rand"
	"time"

	"github.com/youturn45/polymarket-tools/internal/model"
)

// Iceberg splits a large order into randomized tranches to reduce
// market impact.
type Iceberg struct {
	params model.IcebergParams
}

// NewIceberg creates the tranche calculator.
func NewIceberg(params model.IcebergParams) *Iceberg {
	return &Iceberg{params: params}
}

// NextTrancheSize sizes the next tranche: the initial size on the first
// tranche, the minimum size afterwards, a uniform random multiplier in
// [1-r, 1+r], then clamped to [min,max] and finally to remaining.
func (s *Iceberg) NextTrancheSize(remaining int64, isFirst bool) int64 {
	if remaining <= 0 {
		return 0
	}

	base := s.params.MinTrancheSize
	if isFirst {
		base = s.params.InitialTrancheSize
	}

	size := base
	if r := s.params.TrancheRandomization; r > 0 {
		factor := 1.0 + (rand.Float64()*2-1)*r
		size = int64(float64(base) * factor)
	}

	if size < s.params.MinTrancheSize {
		size = s.params.MinTrancheSize
	}
	if size > s.params.MaxTrancheSize {
		size = s.params.MaxTrancheSize
	}
	if size > remaining {
		size = remaining
	}
	return size
}

// AllTranches returns the full tranche plan; sizes sum exactly to total.
func (s *Iceberg) AllTranches(total int64) []int64 {
	var tranches []int64
	remaining := total
	isFirst := true

	for remaining > 0 {
		size := s.NextTrancheSize(remaining, isFirst)
		if size == 0 {
			break
		}
		tranches = append(tranches, size)
		remaining -= size
		isFirst = false
	}
	return tranches
}

// InterTrancheDelay is a randomized 1-3s pause between tranches. The
// randomization is a price-impact control and must stay in place.
func (s *Iceberg) InterTrancheDelay() time.Duration {
	return time.Second + time.Duration(rand.Float64()*2*float64(time.Second))
}
