// Package engine drives the per-instrument position lifecycle: one bar plus
// one signal in, at most one open position, closed-trade records out.
package engine

import "github.com/niickyg/oanda-trading-bot/internal/market"

// Lifecycle is the position state machine for a single instrument. It cycles
// between flat and open indefinitely; it is the sole owner of the Position
// and is driven strictly in bar-arrival order. Both the live engine and the
// backtester run their exits through this one implementation.
type Lifecycle struct {
	pos      *market.Position
	barIndex int
}

// NewLifecycle starts flat at bar index zero.
func NewLifecycle() *Lifecycle { return &Lifecycle{} }

// Position returns the open position, or nil when flat.
func (lc *Lifecycle) Position() *market.Position { return lc.pos }

// BarIndex returns the index of the bar currently being processed.
func (lc *Lifecycle) BarIndex() int { return lc.barIndex }

// Advance moves to the next bar. Call once per bar, after exit and entry
// evaluation.
func (lc *Lifecycle) Advance() { lc.barIndex++ }

// Open records a new position entered on the current bar. The caller must be
// flat; a second open replaces nothing and is a programming error upstream,
// so it is ignored to preserve the one-position invariant.
func (lc *Lifecycle) Open(pos market.Position) {
	if lc.pos != nil {
		return
	}
	pos.EntryBarIndex = lc.barIndex
	lc.pos = &pos
}

// CheckExit evaluates the open position against the current bar's range and
// closes it when a condition fires. Conditions are checked in priority order
// stop-loss, take-profit, then time: when price gaps through both protective
// levels inside one bar the stop is assumed filled first. Incomplete bars are
// never used for exit decisions.
func (lc *Lifecycle) CheckExit(bar market.Bar) (market.Trade, bool) {
	if lc.pos == nil || !bar.Complete {
		return market.Trade{}, false
	}
	pos := lc.pos

	hitSL := (pos.Side == market.Long && bar.Low <= pos.StopLoss) ||
		(pos.Side == market.Short && bar.High >= pos.StopLoss)
	hitTP := (pos.Side == market.Long && bar.High >= pos.TakeProfit) ||
		(pos.Side == market.Short && bar.Low <= pos.TakeProfit)
	hitTime := pos.MaxHoldBars > 0 && lc.barIndex-pos.EntryBarIndex >= pos.MaxHoldBars

	var reason market.ExitReason
	var exitPrice float64
	switch {
	case hitSL:
		reason, exitPrice = market.ExitStopLoss, pos.StopLoss
	case hitTP:
		reason, exitPrice = market.ExitTakeProfit, pos.TakeProfit
	case hitTime:
		reason, exitPrice = market.ExitTime, bar.Close
	default:
		return market.Trade{}, false
	}

	pnl := exitPrice - pos.EntryPrice
	if pos.Side == market.Short {
		pnl = pos.EntryPrice - exitPrice
	}

	trade := market.Trade{
		Instrument:    pos.Instrument,
		Side:          pos.Side,
		Units:         pos.Units,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		EntryBarIndex: pos.EntryBarIndex,
		ExitBarIndex:  lc.barIndex,
		ExitReason:    reason,
		PnL:           pnl,
		ClosedAt:      bar.OpenTime,
	}
	lc.pos = nil
	return trade, true
}
