// Package market standardizes payloads shared between data ingestion, strategies, and the engine.
package market

import (
	"math"
	"strings"
	"time"
)

// Signal expresses the directional recommendation a strategy produces for one bar.
type Signal string

const (
	// Buy recommends opening a long position.
	Buy Signal = "BUY"
	// Sell recommends opening a short position.
	Sell Signal = "SELL"
	// None recommends no action.
	None Signal = "NONE"
)

// Side enumerates the direction of an open position.
type Side string

const (
	// Long profits when price rises.
	Long Side = "LONG"
	// Short profits when price falls.
	Short Side = "SHORT"
)

// SideFor maps an entry signal to the position side it opens.
func SideFor(sig Signal) Side {
	if sig == Sell {
		return Short
	}
	return Long
}

// ExitReason records which condition closed a position.
type ExitReason string

const (
	// ExitTakeProfit means the target level was touched.
	ExitTakeProfit ExitReason = "TP"
	// ExitStopLoss means the stop level was touched.
	ExitStopLoss ExitReason = "SL"
	// ExitTime means the maximum hold duration elapsed.
	ExitTime ExitReason = "TIME"
)

// UpdateTypePrice marks a streamed record carrying a quote; anything else is a heartbeat.
const UpdateTypePrice = "PRICE"

// PriceUpdate models one raw record from the pricing stream before aggregation.
type PriceUpdate struct {
	Instrument string
	Bid        float64
	Ask        float64
	Time       time.Time
	Type       string
}

// Mid returns the midpoint of best bid and ask.
func (u PriceUpdate) Mid() float64 { return (u.Bid + u.Ask) / 2 }

// Bar is a fixed-duration OHLCV aggregate for one instrument. Immutable once emitted.
type Bar struct {
	Instrument string
	OpenTime   time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int
	Complete   bool
}

// Position is the live state of one open trade. Owned exclusively by the engine.
type Position struct {
	Instrument    string
	Side          Side
	EntryPrice    float64
	EntryBarIndex int
	StopLoss      float64
	TakeProfit    float64
	MaxHoldBars   int
	Units         int
}

// Trade is the immutable record emitted exactly once when a position closes.
type Trade struct {
	Instrument    string
	Side          Side
	Units         int
	EntryPrice    float64
	ExitPrice     float64
	EntryBarIndex int
	ExitBarIndex  int
	ExitReason    ExitReason
	PnL           float64
	ClosedAt      time.Time
}

// Win reports whether the trade realized a profit.
func (t Trade) Win() bool { return t.PnL > 0 }

// PipSize returns the minimum quoted increment for an instrument:
// 0.01 for JPY-quoted pairs, 0.0001 otherwise.
func PipSize(instrument string) float64 {
	if strings.HasSuffix(instrument, "JPY") {
		return 0.01
	}
	return 0.0001
}

// Precision returns the decimal places an instrument quotes to (2 for JPY pairs, 5 otherwise).
func Precision(instrument string) int {
	if strings.HasSuffix(instrument, "JPY") {
		return 2
	}
	return 5
}

// RoundPrice rounds a price to the instrument's quoted precision. Backtest and
// live paths both round through here so their fills stay comparable.
func RoundPrice(instrument string, price float64) float64 {
	scale := math.Pow10(Precision(instrument))
	return math.Round(price*scale) / scale
}
