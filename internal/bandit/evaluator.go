package bandit

import (
	"context"
	"fmt"

	"github.com/niickyg/oanda-trading-bot/internal/backtest"
	"github.com/niickyg/oanda-trading-bot/internal/market"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
)

// CandleSource supplies historical bars for calibration, typically the broker
// REST client.
type CandleSource interface {
	Candles(ctx context.Context, instrument, granularity string, count int) ([]market.Bar, error)
}

// BacktestEvaluator scores an arm by backtesting it over a fixed calibration
// window. The window is fetched once and reused, so pulls of the same arm
// within one optimization run always agree.
type BacktestEvaluator struct {
	src         CandleSource
	instrument  string
	granularity string
	count       int
	cfg         backtest.Config

	window []market.Bar
}

// NewBacktestEvaluator builds an evaluator over one instrument's history.
func NewBacktestEvaluator(src CandleSource, instrument, granularity string, count int, cfg backtest.Config) *BacktestEvaluator {
	return &BacktestEvaluator{src: src, instrument: instrument, granularity: granularity, count: count, cfg: cfg}
}

// Evaluate backtests a fresh instance of the named strategy and returns its
// total PnL over the window.
func (e *BacktestEvaluator) Evaluate(ctx context.Context, name string, params strategy.Params) (float64, error) {
	if e.window == nil {
		bars, err := e.src.Candles(ctx, e.instrument, e.granularity, e.count)
		if err != nil {
			return 0, fmt.Errorf("fetch calibration candles: %w", err)
		}
		if len(bars) == 0 {
			return 0, fmt.Errorf("empty calibration window for %s", e.instrument)
		}
		e.window = bars
	}

	s, err := strategy.Build(name, params)
	if err != nil {
		return 0, err
	}
	res := backtest.Run(s, e.window, e.cfg)
	return res.Stats.TotalPnL, nil
}
