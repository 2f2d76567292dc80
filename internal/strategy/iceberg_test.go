package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youturn45/polymarket-tools/internal/model"
)

func TestIcebergDeterministicPlan(t *testing.T) {
	iceberg := NewIceberg(model.IcebergParams{
		InitialTrancheSize:   200,
		MinTrancheSize:       100,
		MaxTrancheSize:       300,
		TrancheRandomization: 0,
	})

	tranches := iceberg.AllTranches(1000)

	require.Len(t, tranches, 9)
	assert.Equal(t, int64(200), tranches[0])
	for _, size := range tranches[1:] {
		assert.Equal(t, int64(100), size)
	}

	var sum int64
	for _, size := range tranches {
		sum += size
	}
	assert.Equal(t, int64(1000), sum)
}

func TestIcebergRandomizedSizesStayInBounds(t *testing.T) {
	params := model.IcebergParams{
		InitialTrancheSize:   100,
		MinTrancheSize:       50,
		MaxTrancheSize:       150,
		TrancheRandomization: 0.5,
	}
	iceberg := NewIceberg(params)

	for i := 0; i < 200; i++ {
		size := iceberg.NextTrancheSize(10000, false)
		assert.GreaterOrEqual(t, size, params.MinTrancheSize)
		assert.LessOrEqual(t, size, params.MaxTrancheSize)
	}
}

func TestIcebergLastTrancheClampedToRemaining(t *testing.T) {
	iceberg := NewIceberg(model.IcebergParams{
		InitialTrancheSize:   200,
		MinTrancheSize:       100,
		MaxTrancheSize:       300,
		TrancheRandomization: 0,
	})

	assert.Equal(t, int64(30), iceberg.NextTrancheSize(30, false))
	assert.Equal(t, int64(0), iceberg.NextTrancheSize(0, false))
	assert.Equal(t, int64(0), iceberg.NextTrancheSize(-5, true))
}

func TestIcebergPlanSumsToTotalWithRandomization(t *testing.T) {
	iceberg := NewIceberg(model.IcebergParams{
		InitialTrancheSize:   80,
		MinTrancheSize:       40,
		MaxTrancheSize:       120,
		TrancheRandomization: 0.3,
	})

	for i := 0; i < 50; i++ {
		tranches := iceberg.AllTranches(777)
		var sum int64
		for _, size := range tranches {
			sum += size
		}
		assert.Equal(t, int64(777), sum)
	}
}

func TestInterTrancheDelayRange(t *testing.T) {
	iceberg := NewIceberg(model.DefaultIcebergParams())

	for i := 0; i < 100; i++ {
		delay := iceberg.InterTrancheDelay()
		assert.GreaterOrEqual(t, delay, time.Second)
		assert.LessOrEqual(t, delay, 3*time.Second)
	}
}
