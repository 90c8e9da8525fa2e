package feed

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// runStub emits one deterministic synthetic bar per instrument per interval,
// in sorted instrument order. Prices follow a slow sine walk so strategies see
// both trends and reversals without a live connection.
func (f *Feed) runStub(ctx context.Context, out chan<- market.Bar) error {
	interval := time.Duration(f.barSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			openTime := ts.UTC().Truncate(interval)
			for _, in := range f.instruments {
				bar := stubBar(in, step, openTime)
				select {
				case out <- bar:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			step++
		}
	}
}

func stubBar(instrument string, step int, openTime time.Time) market.Bar {
	base := 1.10
	if strings.HasSuffix(instrument, "JPY") {
		base = 110.0
	}
	pip := market.PipSize(instrument)

	prev := base + 20*pip*math.Sin(float64(step)/9)
	close := base + 20*pip*math.Sin(float64(step+1)/9)
	high := math.Max(prev, close) + pip
	low := math.Min(prev, close) - pip

	return market.Bar{
		Instrument: instrument,
		OpenTime:   openTime,
		Open:       market.RoundPrice(instrument, prev),
		High:       market.RoundPrice(instrument, high),
		Low:        market.RoundPrice(instrument, low),
		Close:      market.RoundPrice(instrument, close),
		Volume:     1,
		Complete:   true,
	}
}
