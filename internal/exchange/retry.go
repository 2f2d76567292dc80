package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// RetryClient decorates a Client with bounded retries and exponential
// backoff. Once attempts are exhausted the last error is surfaced as a
// terminal one, wrapped with ErrRetriesExhausted.
type RetryClient struct {
	inner       Client
	backoff     Backoff
	maxAttempts int
}

// NewRetryClient wraps a client; maxAttempts below 1 falls back to 3.
func NewRetryClient(inner Client, backoff Backoff, maxAttempts int) *RetryClient {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &RetryClient{
		inner:       inner,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

func (c *RetryClient) retry(ctx context.Context, op string, call func() error) error {
	var last error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = call()
		if last == nil {
			return nil
		}

		if attempt == c.maxAttempts {
			break
		}

		wait := c.backoff.Next(attempt)
		logs.Warnf("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt, c.maxAttempts, wait, last)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return errors.Wrap(exception.ErrRetriesExhausted, fmt.Sprintf("%s: %v", op, last))
}

func (c *RetryClient) PlaceOrder(ctx context.Context, tokenID string, side enum.Side, price float64, size int64) (PlacedOrder, error) {
	var out PlacedOrder
	err := c.retry(ctx, "place order", func() error {
		var callErr error
		out, callErr = c.inner.PlaceOrder(ctx, tokenID, side, price, size)
		return callErr
	})
	return out, err
}

func (c *RetryClient) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	return c.retry(ctx, "cancel order", func() error {
		return c.inner.CancelOrder(ctx, exchangeOrderID)
	})
}

func (c *RetryClient) GetOrderStatus(ctx context.Context, exchangeOrderID string) (OrderStatus, error) {
	var out OrderStatus
	err := c.retry(ctx, "get order status", func() error {
		var callErr error
		out, callErr = c.inner.GetOrderStatus(ctx, exchangeOrderID)
		return callErr
	})
	return out, err
}

func (c *RetryClient) GetOrderBook(ctx context.Context, tokenID string) (OrderBook, error) {
	var out OrderBook
	err := c.retry(ctx, "get order book", func() error {
		var callErr error
		out, callErr = c.inner.GetOrderBook(ctx, tokenID)
		return callErr
	})
	return out, err
}

func (c *RetryClient) GetOpenOrders(ctx context.Context, tokenID string) ([]OpenOrder, error) {
	var out []OpenOrder
	err := c.retry(ctx, "get open orders", func() error {
		var callErr error
		out, callErr = c.inner.GetOpenOrders(ctx, tokenID)
		return callErr
	})
	return out, err
}
