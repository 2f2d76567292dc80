package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// flakyClient fails the first failures calls of every operation.
type flakyClient struct {
	failures int
	calls    int
}

func (f *flakyClient) do() error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient")
	}
	return nil
}

func (f *flakyClient) PlaceOrder(ctx context.Context, tokenID string, side enum.Side, price float64, size int64) (PlacedOrder, error) {
	if err := f.do(); err != nil {
		return PlacedOrder{}, err
	}
	return PlacedOrder{ExchangeOrderID: "x1"}, nil
}

func (f *flakyClient) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	return f.do()
}

func (f *flakyClient) GetOrderStatus(ctx context.Context, exchangeOrderID string) (OrderStatus, error) {
	return OrderStatus{}, f.do()
}

func (f *flakyClient) GetOrderBook(ctx context.Context, tokenID string) (OrderBook, error) {
	return OrderBook{}, f.do()
}

func (f *flakyClient) GetOpenOrders(ctx context.Context, tokenID string) ([]OpenOrder, error) {
	return nil, f.do()
}

func fastBackoff() Backoff {
	return Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakyClient{failures: 2}
	client := NewRetryClient(inner, fastBackoff(), 3)

	placed, err := client.PlaceOrder(t.Context(), "tok-1", enum.SideBuy, 0.50, 100)
	require.NoError(t, err)
	assert.Equal(t, "x1", placed.ExchangeOrderID)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	inner := &flakyClient{failures: 100}
	client := NewRetryClient(inner, fastBackoff(), 3)

	err := client.CancelOrder(t.Context(), "x1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), exception.ErrRetriesExhausted.Error())
	assert.Equal(t, 3, inner.calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	inner := &flakyClient{failures: 100}
	client := NewRetryClient(inner, fastBackoff(), 5)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := client.GetOrderBook(ctx, "tok-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inner.calls)
}

func TestBackoffGrowsAndClamps(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(10))
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		wait := b.Next(2)
		assert.GreaterOrEqual(t, wait, 160*time.Millisecond)
		assert.LessOrEqual(t, wait, 240*time.Millisecond)
	}
}
