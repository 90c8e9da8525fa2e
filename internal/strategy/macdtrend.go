package strategy

import "github.com/niickyg/oanda-trading-bot/internal/market"

// MACDTrend trades MACD/signal-line crossovers in the direction of a long EMA
// trend filter: longs only above the trend EMA, shorts only below it.
type MACDTrend struct {
	fast, slow, sig int
	emaTrend        int
}

// NewMACDTrend builds the strategy from its parameter bundle.
func NewMACDTrend(params Params) *MACDTrend {
	return &MACDTrend{
		fast:     params.GetInt("macd_fast", 12),
		slow:     params.GetInt("macd_slow", 26),
		sig:      params.GetInt("macd_sig", 9),
		emaTrend: params.GetInt("ema_trend", 200),
	}
}

// Name returns the registry identifier.
func (s *MACDTrend) Name() string { return "macdtrend" }

// Signal looks for a fresh MACD crossover aligned with the trend filter.
// Needs the previous bar to detect the cross, so emaTrend+2 bars minimum.
func (s *MACDTrend) Signal(history []market.Bar) market.Signal {
	if len(history) < s.emaTrend+2 {
		return market.None
	}
	cs := closes(history)

	trend := emaSeries(cs, s.emaTrend)
	macdLine, sigLine := macd(cs, s.fast, s.slow, s.sig)

	n := len(cs)
	price := cs[n-1]
	emaNow := trend[n-1]
	macdPrev, sigPrev := macdLine[n-2], sigLine[n-2]
	macdCurr, sigCurr := macdLine[n-1], sigLine[n-1]

	if price > emaNow && macdPrev < sigPrev && macdCurr > sigCurr {
		return market.Buy
	}
	if price < emaNow && macdPrev > sigPrev && macdCurr < sigCurr {
		return market.Sell
	}
	return market.None
}
