package strategy

import "github.com/niickyg/oanda-trading-bot/internal/market"

// fallbackATR stands in when the history is too short to compute a real ATR,
// so an early signal still gets a sane stop distance.
const fallbackATR = 0.0005

// Levels derives stop-loss and take-profit prices from ATR multiples around
// the entry. A level that lands exactly on the entry is nudged one pip so the
// trade never starts with zero-distance protection.
func Levels(instrument string, entry float64, sig market.Signal, atr, slMult, tpMult float64) (stop, target float64) {
	if atr <= 0 {
		atr = fallbackATR
	}
	if sig == market.Sell {
		stop = entry + slMult*atr
		target = entry - tpMult*atr
	} else {
		stop = entry - slMult*atr
		target = entry + tpMult*atr
	}

	stop = market.RoundPrice(instrument, stop)
	target = market.RoundPrice(instrument, target)
	pip := market.PipSize(instrument)
	if stop == entry {
		if sig == market.Sell {
			stop = entry + pip
		} else {
			stop = entry - pip
		}
	}
	if target == entry {
		if sig == market.Sell {
			target = entry - pip
		} else {
			target = entry + pip
		}
	}
	return stop, target
}
