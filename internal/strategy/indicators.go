package strategy

import "github.com/niickyg/oanda-trading-bot/internal/market"

func closes(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// emaSeries returns the full single-pass EMA series for the given span.
func emaSeries(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA computes the simple moving average of the last period values.
// Returns false when there is not enough data.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), true
}

// macd returns the MACD line and its signal line.
func macd(values []float64, fast, slow, sig int) (macdLine, sigLine []float64) {
	fastEMA := emaSeries(values, fast)
	slowEMA := emaSeries(values, slow)
	macdLine = make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	return macdLine, emaSeries(macdLine, sig)
}

// RSI computes the Wilder-smoothed relative strength index over period.
// Returns 50 when there is not enough data, matching a neutral reading.
func RSI(bars []market.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 50.0
	}
	cs := closes(bars)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := cs[i] - cs[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(cs); i++ {
		change := cs[i] - cs[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// ATR computes the average true range over the trailing period.
// Returns 0 when there is not enough data.
func ATR(bars []market.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	start := len(bars) - period
	var sum float64
	for i := start; i < len(bars); i++ {
		tr := bars[i].High - bars[i].Low
		prevClose := bars[i-1].Close
		if hc := abs(bars[i].High - prevClose); hc > tr {
			tr = hc
		}
		if lc := abs(bars[i].Low - prevClose); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
