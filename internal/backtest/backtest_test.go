package backtest

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/market"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
)

func barsFromCloses(closes []float64) []market.Bar {
	out := make([]market.Bar, len(closes))
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = market.Bar{
			Instrument: "EUR_USD",
			OpenTime:   start.Add(time.Duration(i) * 5 * time.Second),
			Open:       c,
			High:       c + 0.0002,
			Low:        c - 0.0002,
			Close:      c,
			Volume:     1,
			Complete:   true,
		}
	}
	return out
}

// levelStub buys on the first signal request and picks its own levels.
type levelStub struct {
	sl, tp     float64
	maxHold    int
	fired      bool
	alwaysBuy  bool
	levelCalls int
	histLens   []int
	closedPnls []float64
}

func (s *levelStub) Name() string { return "levelstub" }

func (s *levelStub) Signal(hist []market.Bar) market.Signal {
	s.histLens = append(s.histLens, len(hist))
	if s.alwaysBuy {
		return market.Buy
	}
	if s.fired {
		return market.None
	}
	s.fired = true
	return market.Buy
}

func (s *levelStub) Levels([]market.Bar, market.Signal) (float64, float64, int) {
	s.levelCalls++
	return s.sl, s.tp, s.maxHold
}

func (s *levelStub) OnTradeClosed(_ bool, pnl float64) {
	s.closedPnls = append(s.closedPnls, pnl)
}

func TestRunStopLossScenario(t *testing.T) {
	stub := &levelStub{sl: 1.0990, tp: 1.1040, maxHold: 3}
	res := Run(stub, barsFromCloses([]float64{1.1000, 1.1010, 1.1025, 1.0960, 1.1005}), Config{Warmup: 1})

	if len(res.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != market.ExitStopLoss {
		t.Fatalf("expected SL, got %s", tr.ExitReason)
	}
	if tr.EntryBarIndex != 1 || tr.ExitBarIndex != 3 {
		t.Fatalf("expected entry 1 exit 3, got %d/%d", tr.EntryBarIndex, tr.ExitBarIndex)
	}
	if math.Abs(tr.PnL-(1.0990-1.1010)) > 1e-9 {
		t.Fatalf("unexpected pnl %v", tr.PnL)
	}
	if res.Stats.Trades != 1 || res.Stats.Losses != 1 {
		t.Fatalf("stats out of step with trades: %+v", res.Stats)
	}
	if len(stub.closedPnls) != 1 {
		t.Fatalf("adaptive strategy must hear about its closed trade")
	}
}

func TestNoEntryOnLastBar(t *testing.T) {
	stub := &levelStub{sl: 1.0990, tp: 1.1100, alwaysBuy: true}
	res := Run(stub, barsFromCloses([]float64{1.1000}), Config{Warmup: 1})

	if stub.levelCalls != 0 {
		t.Fatalf("the final bar must never open a position")
	}
	if len(res.Trades) != 0 {
		t.Fatalf("unexpected trades %+v", res.Trades)
	}
}

func TestWarmupBlocksEntries(t *testing.T) {
	stub := &levelStub{sl: 1.0990, tp: 1.1100, alwaysBuy: true}
	Run(stub, barsFromCloses([]float64{1.1000, 1.1001, 1.1002, 1.1003, 1.1004}), Config{Warmup: 3})

	if len(stub.histLens) == 0 {
		t.Fatalf("expected at least one signal request")
	}
	if stub.histLens[0] != 4 {
		t.Fatalf("first signal must see the full warmup window, got %d bars", stub.histLens[0])
	}
}

func TestExitBarNeverReenters(t *testing.T) {
	stub := &levelStub{sl: 1.0990, tp: 1.1003, alwaysBuy: true}
	res := Run(stub, barsFromCloses([]float64{1.1000, 1.1000, 1.1004, 1.1000}), Config{Warmup: 1})

	// Entry on bar 1, TP on bar 2, re-entry no earlier than bar... bar 3 is
	// the last bar so no second entry happens at all.
	if len(res.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(res.Trades))
	}
	if res.Trades[0].ExitBarIndex != 2 {
		t.Fatalf("expected TP on bar 2, got %d", res.Trades[0].ExitBarIndex)
	}
	if stub.levelCalls != 1 {
		t.Fatalf("exit bar must not re-enter, got %d entries", stub.levelCalls)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 1.10 + 0.002*math.Sin(float64(i)/9)
	}
	bars := barsFromCloses(closes)

	run := func() Result {
		s, err := strategy.Build("rsireversion", nil)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return Run(s, bars, Config{Warmup: 30})
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replay must be identical:\n%+v\nvs\n%+v", first, second)
	}
}

func TestPanickingStrategyProducesNoTrades(t *testing.T) {
	res := Run(panicStrategy{}, barsFromCloses([]float64{1.1000, 1.1001, 1.1002}), Config{Warmup: 1})
	if len(res.Trades) != 0 {
		t.Fatalf("faulting strategy must be treated as silent, got %+v", res.Trades)
	}
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panic" }

func (panicStrategy) Signal([]market.Bar) market.Signal { panic("window underflow") }
