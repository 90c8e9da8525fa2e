package feed

import (
	"time"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// aggregator buckets mid-price quotes into fixed-duration bars, one builder
// per instrument. A bar completes when the first quote of the next bucket
// arrives; quotes older than the current bucket are dropped so a replayed or
// reordered stream can never corrupt an emitted bar.
type aggregator struct {
	barSeconds int64
	building   map[string]*barBuilder
}

type barBuilder struct {
	bucket                 int64
	open, high, low, close float64
	volume                 int
}

func newAggregator(barSeconds int64) *aggregator {
	return &aggregator{barSeconds: barSeconds, building: make(map[string]*barBuilder)}
}

// Add folds one quote into its instrument's current bar. When the quote opens
// a new bucket the previous bar is returned complete.
func (a *aggregator) Add(u market.PriceUpdate) (market.Bar, bool) {
	mid := u.Mid()
	bucket := u.Time.Unix() / a.barSeconds * a.barSeconds

	b, ok := a.building[u.Instrument]
	if !ok {
		a.building[u.Instrument] = &barBuilder{bucket: bucket, open: mid, high: mid, low: mid, close: mid, volume: 1}
		return market.Bar{}, false
	}
	if bucket < b.bucket {
		return market.Bar{}, false
	}
	if bucket == b.bucket {
		if mid > b.high {
			b.high = mid
		}
		if mid < b.low {
			b.low = mid
		}
		b.close = mid
		b.volume++
		return market.Bar{}, false
	}

	done := market.Bar{
		Instrument: u.Instrument,
		OpenTime:   time.Unix(b.bucket, 0).UTC(),
		Open:       b.open,
		High:       b.high,
		Low:        b.low,
		Close:      b.close,
		Volume:     b.volume,
		Complete:   true,
	}
	a.building[u.Instrument] = &barBuilder{bucket: bucket, open: mid, high: mid, low: mid, close: mid, volume: 1}
	return done, true
}
