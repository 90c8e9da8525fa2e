// Package backtest replays historical bars through a strategy using the same
// position lifecycle as the live engine, so simulated and live fills agree.
package backtest

import (
	"github.com/niickyg/oanda-trading-bot/internal/engine"
	"github.com/niickyg/oanda-trading-bot/internal/market"
	"github.com/niickyg/oanda-trading-bot/internal/perf"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
)

// Config tunes a single backtest run.
type Config struct {
	Warmup      int
	SLMult      float64
	TPMult      float64
	ATRPeriod   int
	MaxHoldBars int
}

// Result is the outcome of one run. Trades are in close order; a position
// still open when the data ends is discarded, not force-closed.
type Result struct {
	Strategy string         `json:"strategy"`
	Stats    perf.Stats     `json:"stats"`
	Trades   []market.Trade `json:"trades"`
}

func (c Config) withDefaults() Config {
	if c.Warmup <= 0 {
		c.Warmup = 50
	}
	if c.SLMult <= 0 {
		c.SLMult = 1.0
	}
	if c.TPMult <= 0 {
		c.TPMult = 2.0
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	return c
}

// Run replays bars through the strategy. Exits are evaluated before entries
// and at most one state transition happens per bar, exactly as in live
// trading. The last bar never opens a position because there is no later bar
// to exit on.
func Run(strat strategy.Strategy, bars []market.Bar, cfg Config) Result {
	cfg = cfg.withDefaults()
	lc := engine.NewLifecycle()
	tracker := perf.NewTracker()
	var trades []market.Trade

	feedback, adapts := strat.(strategy.TradeFeedback)

	for i, bar := range bars {
		if trade, closed := lc.CheckExit(bar); closed {
			tracker.Record(trade)
			trades = append(trades, trade)
			if adapts {
				feedback.OnTradeClosed(trade.Win(), trade.PnL)
			}
			lc.Advance()
			continue
		}
		if lc.Position() != nil || i < cfg.Warmup || i == len(bars)-1 {
			lc.Advance()
			continue
		}

		hist := bars[:i+1]
		sig := safeSignal(strat, hist)
		if sig == market.None {
			lc.Advance()
			continue
		}

		entry := bar.Close
		stop, target := 0.0, 0.0
		maxHold := cfg.MaxHoldBars
		if lv, ok := strat.(strategy.Leveler); ok {
			stop, target, maxHold = lv.Levels(hist, sig)
		} else {
			atr := strategy.ATR(hist, cfg.ATRPeriod)
			stop, target = strategy.Levels(bar.Instrument, entry, sig, atr, cfg.SLMult, cfg.TPMult)
		}

		lc.Open(market.Position{
			Instrument:  bar.Instrument,
			Side:        market.SideFor(sig),
			EntryPrice:  entry,
			StopLoss:    stop,
			TakeProfit:  target,
			MaxHoldBars: maxHold,
			Units:       1,
		})
		lc.Advance()
	}

	return Result{Strategy: strat.Name(), Stats: tracker.Stats(), Trades: trades}
}

func safeSignal(strat strategy.Strategy, hist []market.Bar) (sig market.Signal) {
	defer func() {
		if recover() != nil {
			sig = market.None
		}
	}()
	return strat.Signal(hist)
}
