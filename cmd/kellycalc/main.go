package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/youturn45/polymarket-tools/internal/model/enum"
	"github.com/youturn45/polymarket-tools/internal/strategy"
)

// kellycalc sizes a prediction-market bet from the command line without
// touching the exchange. Given a price (or a bid/ask pair) and a win
// probability estimate it prints the edge and a fractional-Kelly table.
func main() {
	price := flag.Float64("price", 0, "Contract price in (0,1); exclusive with -bid/-ask")
	bid := flag.Float64("bid", 0, "Best bid; used with -ask to pick a side")
	ask := flag.Float64("ask", 0, "Best ask; used with -bid to pick a side")
	trueProb := flag.Float64("true-prob", 0, "Estimated win probability; values above 1 are read as percent")
	side := flag.String("side", "BUY", "BUY or SELL (single-price mode)")
	bankroll := flag.Float64("bankroll", 1000, "Bankroll in dollars")
	edgeCap := flag.Float64("edge-upper-bound", 0, "Edge cap in (0,1]; 0 disables")
	maxPosition := flag.Int64("max-position", 0, "Share cap; 0 disables")
	flag.Parse()

	prob := normalizeProbability(*trueProb)
	if prob <= 0 || prob >= 1 {
		fatal("true-prob must be in (0,1), got %v", *trueProb)
	}
	if *edgeCap < 0 || *edgeCap > 1 {
		fatal("edge-upper-bound must be in [0,1], got %v", *edgeCap)
	}
	if *bankroll <= 0 {
		fatal("bankroll must be positive, got %v", *bankroll)
	}

	if *bid > 0 || *ask > 0 {
		runSpreadMode(*bid, *ask, prob, *bankroll, *edgeCap, *maxPosition)
		return
	}

	orderSide := enum.ParseSide(*side)
	if !orderSide.IsAvailable() {
		fatal("side must be BUY or SELL, got %q", *side)
	}
	if *price <= 0 || *price >= 1 {
		fatal("price must be in (0,1), got %v", *price)
	}
	report(orderSide, *price, prob, *bankroll, *edgeCap, *maxPosition)
}

// normalizeProbability accepts 65 as shorthand for 0.65.
func normalizeProbability(p float64) float64 {
	if p > 1 {
		return p / 100
	}
	return p
}

// runSpreadMode picks the side the estimate justifies: buy above the
// ask, sell below the bid, no bet inside the spread.
func runSpreadMode(bid, ask, prob, bankroll, edgeCap float64, maxPosition int64) {
	if bid <= 0 || ask <= 0 || bid >= 1 || ask >= 1 || bid >= ask {
		fatal("need 0 < bid < ask < 1, got bid=%v ask=%v", bid, ask)
	}

	fmt.Printf("market: bid %.4f / ask %.4f, estimate %.2f%%\n\n", bid, ask, prob*100)
	switch {
	case prob > ask:
		fmt.Println("estimate above the ask: BUY")
		report(enum.SideBuy, ask, prob, bankroll, edgeCap, maxPosition)
	case prob < bid:
		fmt.Println("estimate below the bid: SELL")
		report(enum.SideSell, bid, prob, bankroll, edgeCap, maxPosition)
	default:
		fmt.Println("estimate sits inside the spread: no bet")
	}
}

func report(side enum.Side, price, prob, bankroll, edgeCap float64, maxPosition int64) {
	edge := strategy.Edge(prob, price, side)
	fmt.Printf("side:        %s @ %.4f\n", side, price)
	fmt.Printf("edge:        %+.2f%%\n", edge*100)

	if edge <= 0 {
		fmt.Println("\nno positive edge: do not bet")
		return
	}
	if edgeCap > 0 && edge > edgeCap {
		fmt.Printf("edge capped: %.2f%% (bound %.2f%%)\n", edgeCap*100, edgeCap*100)
	}

	fraction := strategy.Fraction(prob, price, side, edgeCap)
	fmt.Printf("full kelly:  %.2f%% of bankroll\n\n", fraction*100)

	fmt.Printf("%-14s %-10s %-10s %s\n", "strategy", "fraction", "stake", "shares")
	for _, row := range []struct {
		name string
		mult float64
	}{
		{"full", 1},
		{"half", 0.5},
		{"quarter", 0.25},
		{"tenth", 0.1},
	} {
		shares := strategy.OptimalShares(bankroll, fraction, row.mult, price, maxPosition)
		stake := float64(shares) * price
		fmt.Printf("%-14s %-10.2f $%-9.2f %d\n", row.name+" kelly", fraction*row.mult, stake, shares)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
