package model

import (
	"math"
	"time"

	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// BookLevel is one price level of the order book.
type BookLevel struct {
	Price float64
	Size  int64
}

// RestingOrder is one of our own open orders in the instrument.
type RestingOrder struct {
	OrderID string
	Side    enum.Side
	Price   float64
	Size    int64
}

// MarketSnapshot is a point-in-time view of one instrument's book with
// the depth-weighted fair value already computed. Immutable once built.
type MarketSnapshot struct {
	TokenID   string
	Timestamp time.Time

	BestBid  float64
	BestAsk  float64
	BidDepth int64
	AskDepth int64
	Spread   float64

	MicroPrice          float64
	MicroPriceLowerBand float64
	MicroPriceUpperBand float64

	// Bids descending, asks ascending, top N levels only.
	Bids []BookLevel
	Asks []BookLevel

	OurOrders []RestingOrder
}

// IsPriceInBounds reports whether a price sits inside the micro-price
// competitiveness band.
func (s *MarketSnapshot) IsPriceInBounds(price float64) bool {
	return price >= s.MicroPriceLowerBand && price <= s.MicroPriceUpperBand
}

// DistanceFromMicroPrice returns the relative distance of a price from
// the fair value.
func (s *MarketSnapshot) DistanceFromMicroPrice(price float64) float64 {
	if s.MicroPrice == 0 {
		return 0
	}
	return math.Abs(price-s.MicroPrice) / s.MicroPrice
}
