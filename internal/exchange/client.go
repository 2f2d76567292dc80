package exchange

import (
	"context"

	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// PlacedOrder is the exchange acknowledgment of a placement.
type PlacedOrder struct {
	ExchangeOrderID string
}

// OrderStatus is the exchange view of a resting order.
type OrderStatus struct {
	ExchangeOrderID string
	FilledAmount    int64
	Price           float64
	Status          string
}

// BookEntry is a raw order book level as returned by the exchange.
type BookEntry struct {
	Price float64
	Size  int64
}

// OrderBook is the raw exchange book; no ordering is guaranteed until the
// market monitor sorts it.
type OrderBook struct {
	Bids []BookEntry
	Asks []BookEntry
}

// OpenOrder is one of our resting orders as reported by the exchange.
type OpenOrder struct {
	ExchangeOrderID string
	TokenID         string
	Side            enum.Side
	Price           float64
	OriginalSize    int64
	SizeMatched     int64
}

// Client is the exchange collaborator contract. Every call is fallible
// and blocking; implementations carry their own transient-retry policy
// so callers only ever see terminal errors.
type Client interface {
	PlaceOrder(ctx context.Context, tokenID string, side enum.Side, price float64, size int64) (PlacedOrder, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	GetOrderStatus(ctx context.Context, exchangeOrderID string) (OrderStatus, error)
	GetOrderBook(ctx context.Context, tokenID string) (OrderBook, error)
	GetOpenOrders(ctx context.Context, tokenID string) ([]OpenOrder, error)
}
