// Package strategy contains the pluggable signal generators and their registry.
package strategy

import (
	"fmt"
	"strings"

	"github.com/niickyg/oanda-trading-bot/internal/market"
)

// Strategy defines behaviour shared by signal generator implementations.
type Strategy interface {
	// Signal inspects the bar history (oldest first) and recommends an action.
	Signal(history []market.Bar) market.Signal
	Name() string
}

// TradeFeedback is implemented by strategies that adapt to their own results.
// The engine invokes it exactly once per closed trade, on the strategy that
// opened the position.
type TradeFeedback interface {
	OnTradeClosed(win bool, pnl float64)
}

// Leveler is implemented by strategies that choose their own stop and target.
// Strategies without it get ATR-multiple levels from the engine's risk config.
type Leveler interface {
	Levels(history []market.Bar, sig market.Signal) (stop, target float64, maxHoldBars int)
}

// Params expresses the tunable knobs passed to strategy constructors.
type Params map[string]float64

// Get returns the named parameter or def when absent.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// GetInt returns the named parameter truncated to int, or def when absent.
func (p Params) GetInt(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// Clone returns an independent copy of the parameter bundle.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Build returns the strategy implementation registered under name.
func Build(name string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "macdtrend", "macd_trend", "macd":
		return NewMACDTrend(params), nil
	case "rsireversion", "rsi_reversion", "rsi":
		return NewRSIReversion(params), nil
	case "trendma", "trend_ma", "ma_cross":
		return NewTrendMA(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
