package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// Paper is an in-memory Client for dry runs. Orders fill instantly at the
// requested entry; realized PnL accrues to the virtual balance when a
// position is closed through MarkPrice or ClosePosition.
type Paper struct {
	mu        sync.Mutex
	log       zerolog.Logger
	balance   float64
	nextOrder int
	positions map[string]*paperPosition
}

type paperPosition struct {
	side       market.Side
	units      int
	entry      float64
	stop       float64
	takeProfit float64
	lastMark   float64
}

// NewPaper seeds a paper account with the given balance.
func NewPaper(balance float64, log zerolog.Logger) *Paper {
	return &Paper{log: log, balance: balance, positions: make(map[string]*paperPosition)}
}

func (p *Paper) PlaceRiskManagedOrder(_ context.Context, instrument string, side market.Side, entry, stop, takeProfit float64, units int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, open := p.positions[instrument]; open {
		return "", fmt.Errorf("position already open for %s", instrument)
	}
	p.nextOrder++
	p.positions[instrument] = &paperPosition{
		side:       side,
		units:      units,
		entry:      entry,
		stop:       stop,
		takeProfit: takeProfit,
		lastMark:   entry,
	}
	id := fmt.Sprintf("paper-%d", p.nextOrder)
	p.log.Info().
		Str("instrument", instrument).
		Str("side", string(side)).
		Int("units", units).
		Float64("entry", entry).
		Str("order_id", id).
		Msg("paper fill")
	return id, nil
}

// MarkBar marks an open position against a full bar. The bar's extremes
// decide protective fills, stop before target when both are inside the
// range, so the ledger realizes the same exit the engine reports.
func (p *Paper) MarkBar(bar market.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[bar.Instrument]
	if !ok {
		return
	}
	pos.lastMark = bar.Close

	exit := 0.0
	switch pos.side {
	case market.Long:
		if bar.Low <= pos.stop {
			exit = pos.stop
		} else if bar.High >= pos.takeProfit {
			exit = pos.takeProfit
		}
	case market.Short:
		if bar.High >= pos.stop {
			exit = pos.stop
		} else if bar.Low <= pos.takeProfit {
			exit = pos.takeProfit
		}
	}
	if exit != 0 {
		p.realize(bar.Instrument, pos, exit)
	}
}

// MarkPrice updates an open position's mark and realizes the trade when the
// price has crossed its stop or target.
func (p *Paper) MarkPrice(instrument string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[instrument]
	if !ok {
		return
	}
	pos.lastMark = price

	exit := 0.0
	switch pos.side {
	case market.Long:
		if price <= pos.stop {
			exit = pos.stop
		} else if price >= pos.takeProfit {
			exit = pos.takeProfit
		}
	case market.Short:
		if price >= pos.stop {
			exit = pos.stop
		} else if price <= pos.takeProfit {
			exit = pos.takeProfit
		}
	}
	if exit != 0 {
		p.realize(instrument, pos, exit)
	}
}

func (p *Paper) AccountEquity(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.balance
	for _, pos := range p.positions {
		equity += unrealized(pos)
	}
	return equity, nil
}

func (p *Paper) OpenPositions(context.Context) ([]OpenPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]OpenPosition, 0, len(p.positions))
	for instrument, pos := range p.positions {
		out = append(out, OpenPosition{
			Instrument:    instrument,
			Side:          pos.side,
			Units:         pos.units,
			UnrealizedPnL: unrealized(pos),
		})
	}
	return out, nil
}

func (p *Paper) ClosePosition(_ context.Context, instrument string, _ market.Side) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[instrument]
	if !ok {
		return fmt.Errorf("no open position for %s", instrument)
	}
	p.realize(instrument, pos, pos.lastMark)
	return nil
}

// Candles synthesizes a deterministic sine-walk window so calibration can run
// without a live venue.
func (p *Paper) Candles(_ context.Context, instrument, _ string, count int) ([]market.Bar, error) {
	base := 1.10
	if strings.HasSuffix(instrument, "JPY") {
		base = 110.0
	}
	pip := market.PipSize(instrument)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	bars := make([]market.Bar, count)
	for i := range bars {
		prev := base + 25*pip*math.Sin(float64(i)/9)
		close := base + 25*pip*math.Sin(float64(i+1)/9)
		bars[i] = market.Bar{
			Instrument: instrument,
			OpenTime:   start.Add(time.Duration(i) * 5 * time.Second),
			Open:       market.RoundPrice(instrument, prev),
			High:       market.RoundPrice(instrument, math.Max(prev, close)+pip),
			Low:        market.RoundPrice(instrument, math.Min(prev, close)-pip),
			Close:      market.RoundPrice(instrument, close),
			Volume:     1,
			Complete:   true,
		}
	}
	return bars, nil
}

// Balance returns the realized virtual balance.
func (p *Paper) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

func (p *Paper) realize(instrument string, pos *paperPosition, exit float64) {
	pnl := unrealizedAt(pos, exit)
	p.balance += pnl
	delete(p.positions, instrument)
	p.log.Info().
		Str("instrument", instrument).
		Str("side", string(pos.side)).
		Float64("exit", exit).
		Float64("pnl", pnl).
		Float64("balance", p.balance).
		Msg("paper position closed")
}

func unrealized(pos *paperPosition) float64 {
	return unrealizedAt(pos, pos.lastMark)
}

func unrealizedAt(pos *paperPosition, price float64) float64 {
	diff := price - pos.entry
	if pos.side == market.Short {
		diff = pos.entry - price
	}
	units := pos.units
	if units < 0 {
		units = -units
	}
	return diff * float64(units)
}
