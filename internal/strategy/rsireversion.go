package strategy

import (
	"sync"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// RSIReversion fades momentum extremes: buy when RSI drops under the oversold
// line, sell when it climbs over the overbought line. It adapts its own
// thresholds from realized results: a cold streak widens the bands so the
// strategy trades less until conditions improve.
type RSIReversion struct {
	period int

	mu         sync.Mutex
	oversold   float64
	overbought float64
	results    []bool
}

const rsiResultWindow = 100

// NewRSIReversion builds the strategy from its parameter bundle.
func NewRSIReversion(params Params) *RSIReversion {
	return &RSIReversion{
		period:     params.GetInt("period", 14),
		oversold:   params.Get("oversold", 30),
		overbought: params.Get("overbought", 70),
	}
}

// Name returns the registry identifier.
func (s *RSIReversion) Name() string { return "rsireversion" }

// Signal compares the current RSI reading against the adaptive thresholds.
func (s *RSIReversion) Signal(history []market.Bar) market.Signal {
	if len(history) < s.period+1 {
		return market.None
	}
	rsi := RSI(history, s.period)

	s.mu.Lock()
	oversold, overbought := s.oversold, s.overbought
	s.mu.Unlock()

	switch {
	case rsi <= oversold:
		return market.Buy
	case rsi >= overbought:
		return market.Sell
	default:
		return market.None
	}
}

// OnTradeClosed maintains a rolling win record and nudges the thresholds:
// under a 45% rolling win rate the bands widen by one point (fewer trades),
// over 60% they tighten by one, staying inside [15,35] / [65,85].
func (s *RSIReversion) OnTradeClosed(win bool, pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, win)
	if len(s.results) > rsiResultWindow {
		s.results = s.results[len(s.results)-rsiResultWindow:]
	}
	if len(s.results) < 20 {
		return
	}

	wins := 0
	for _, w := range s.results {
		if w {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(s.results))

	if winRate < 0.45 {
		s.oversold--
		s.overbought++
	} else if winRate > 0.60 {
		s.oversold++
		s.overbought--
	}
	s.oversold = clamp(s.oversold, 15, 35)
	s.overbought = clamp(s.overbought, 65, 85)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
