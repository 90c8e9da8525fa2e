// Package risk sizes orders so a stop-out loses a fixed fraction of equity.
package risk

import (
	"math"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// MaxUnits caps single-trade exposure regardless of the computed risk size.
const MaxUnits = 1000

// Order carries the sized units and the rounded protective levels for one entry.
type Order struct {
	Units      int
	StopLoss   float64
	TakeProfit float64
}

// Size computes position size from equity, risk fraction, and stop distance.
// A stop equal to the entry price is nudged one pip away so the per-unit risk
// never degenerates to zero. Units are floored, clamped to MaxUnits, and
// negated for shorts. Stop and take-profit come back rounded to the
// instrument's precision.
//
// Size is a pure function of its inputs: drawdown-based riskPct scaling is
// the caller's policy, not ours.
func Size(instrument string, side market.Side, entry, stop, takeProfit, equity, riskPct float64) Order {
	pip := market.PipSize(instrument)
	if stop == entry {
		if side == market.Long {
			stop = entry - pip
		} else {
			stop = entry + pip
		}
	}

	perUnit := math.Abs(entry - stop)
	units := int(math.Floor(equity * riskPct / perUnit))
	if units > MaxUnits {
		units = MaxUnits
	}
	if units < 1 {
		units = 1
	}
	if side == market.Short {
		units = -units
	}

	return Order{
		Units:      units,
		StopLoss:   market.RoundPrice(instrument, stop),
		TakeProfit: market.RoundPrice(instrument, takeProfit),
	}
}
