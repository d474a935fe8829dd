package models

import "math"

// 입력 시계열은 모두 오래된 것 → 최신 순서

// SMA returns the simple moving average of the last period values
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMASeries returns the EMA seeded with the first period's SMA
// 결과 길이 = len(values) - period + 1
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)

	multiplier := 2.0 / (float64(period) + 1.0)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for _, v := range values[period:] {
		ema = v*multiplier + ema*(1-multiplier)
		out = append(out, ema)
	}
	return out
}

// RSI returns Wilder's relative strength index over period
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder smoothing
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
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
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD returns the MACD line and its signal line at the last bar
func MACD(closes []float64, fast, slow, signal int) (float64, float64, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return 0, 0, false
	}

	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)

	// 두 시계열을 마지막 기준으로 정렬
	offset := len(fastEMA) - len(slowEMA)
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}

	sig := EMASeries(line, signal)
	if len(sig) == 0 {
		return 0, 0, false
	}
	return line[len(line)-1], sig[len(sig)-1], true
}

// Return returns the fractional price change over days bars
func Return(closes []float64, days int) (float64, bool) {
	if days <= 0 || len(closes) < days+1 {
		return 0, false
	}
	past := closes[len(closes)-1-days]
	if past == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - past) / past, true
}

// clamp bounds v to [-1, 1]
func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
