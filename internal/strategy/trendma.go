package strategy

import "github.com/niickyg/oanda-trading-bot/internal/market"

// TrendMA is a simple moving-average crossover follower: BUY on a golden
// cross of the fast SMA over the slow SMA, SELL on the death cross. The cross
// is detected against the previous bar's averages so a persistent trend does
// not re-signal every bar.
type TrendMA struct {
	fast, slow int
}

// NewTrendMA builds the strategy from its parameter bundle.
func NewTrendMA(params Params) *TrendMA {
	s := &TrendMA{
		fast: params.GetInt("fast", 50),
		slow: params.GetInt("slow", 200),
	}
	if s.fast >= s.slow {
		s.fast, s.slow = 50, 200
	}
	return s
}

// Name returns the registry identifier.
func (s *TrendMA) Name() string { return "trendma" }

// Signal detects a fast/slow SMA crossover between the previous and current bar.
func (s *TrendMA) Signal(history []market.Bar) market.Signal {
	if len(history) < s.slow+1 {
		return market.None
	}
	cs := closes(history)
	prev := cs[:len(cs)-1]

	fastPrev, ok1 := SMA(prev, s.fast)
	slowPrev, ok2 := SMA(prev, s.slow)
	fastCurr, ok3 := SMA(cs, s.fast)
	slowCurr, ok4 := SMA(cs, s.slow)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return market.None
	}

	if fastPrev <= slowPrev && fastCurr > slowCurr {
		return market.Buy
	}
	if fastPrev >= slowPrev && fastCurr < slowCurr {
		return market.Sell
	}
	return market.None
}
