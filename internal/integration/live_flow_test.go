package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/broker"
	"github.com/niickyg/oanda-trading-bot/internal/engine"
	"github.com/niickyg/oanda-trading-bot/internal/market"
	"github.com/niickyg/oanda-trading-bot/internal/perf"
	"github.com/niickyg/oanda-trading-bot/internal/strategy"
	"github.com/niickyg/oanda-trading-bot/internal/tradelog"
)

// crossTrigger emits one BUY as soon as it has two bars, with wide protective
// levels so the time stop is what closes the position.
type crossTrigger struct{ fired bool }

func (s *crossTrigger) Name() string { return "crosstrigger" }

func (s *crossTrigger) Signal(hist []market.Bar) market.Signal {
	if s.fired || len(hist) < 2 {
		return market.None
	}
	s.fired = true
	return market.Buy
}

func (s *crossTrigger) Levels(hist []market.Bar, _ market.Signal) (float64, float64, int) {
	last := hist[len(hist)-1].Close
	return last - 0.0500, last + 0.0500, 2
}

func TestPaperFlowRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	paper := broker.NewPaper(10000, zerolog.Nop())
	rec := tradelog.NewMemory()
	tracker := perf.NewTracker()
	equity := perf.NewEquity(10000)
	reg := strategy.NewRegistry(zerolog.Nop(), []strategy.Strategy{&crossTrigger{}})
	eng := engine.New(zerolog.Nop(), engine.Config{BaseRiskPct: 0.01}, reg, paper, rec, tracker, equity)

	bars := make(chan market.Bar, 8)
	done := make(chan struct{})
	go func() {
		eng.Run(ctx, bars)
		close(done)
	}()

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i, close := range []float64{1.1000, 1.1004, 1.1008, 1.1012, 1.1016} {
		bars <- market.Bar{
			Instrument: "EUR_USD",
			OpenTime:   start.Add(time.Duration(i) * 5 * time.Second),
			Open:       close,
			High:       close + 0.0002,
			Low:        close - 0.0002,
			Close:      close,
			Volume:     1,
			Complete:   true,
		}
	}
	close(bars)
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("engine did not drain the bar stream")
	}

	orders := rec.Orders()
	if len(orders) != 1 {
		t.Fatalf("expected one order through the paper broker, got %d", len(orders))
	}
	if orders[0].Instrument != "EUR_USD" || orders[0].Units <= 0 {
		t.Fatalf("unexpected order %+v", orders[0])
	}

	trades := rec.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected the time stop to close the trade, got %d trades", len(trades))
	}
	if trades[0].ExitReason != market.ExitTime {
		t.Fatalf("expected TIME exit, got %s", trades[0].ExitReason)
	}
	if trades[0].PnL <= 0 {
		t.Fatalf("rising closes should realize a profit, got %v", trades[0].PnL)
	}
	if tracker.Stats().Trades != 1 {
		t.Fatalf("tracker out of step: %+v", tracker.Stats())
	}

	// The time stop must flatten the paper ledger too, banking the profit.
	open, err := paper.OpenPositions(context.Background())
	if err != nil {
		t.Fatalf("open positions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("paper ledger still holds %d position(s) after the time exit", len(open))
	}
	if paper.Balance() <= 10000 {
		t.Fatalf("realized profit must land in the balance, got %v", paper.Balance())
	}
}
