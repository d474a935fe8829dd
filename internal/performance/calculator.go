package performance

import (
	"math"

	"github.com/wonny/screener/internal/contracts"
)

// ProfitFactorCap is reported when there are winning trades but no losses
const ProfitFactorCap = 999.99

// TradingDaysPerYear annualizes daily return series
const TradingDaysPerYear = 252

// Summarize computes the performance report of one backtest run
// ⭐ SSOT: 성과 지표 계산은 여기서만 (순수 함수)
func Summarize(trades []contracts.Trade, curve []contracts.EquityPoint, initialCapital float64) contracts.PerformanceReport {
	report := contracts.PerformanceReport{
		InitialCapital: sanitize(initialCapital),
		FinalValue:     sanitize(initialCapital),
	}
	if len(curve) > 0 {
		report.FinalValue = sanitize(curve[len(curve)-1].EquityValue)
	}

	totalReturn := 0.0
	if initialCapital > 0 {
		totalReturn = (report.FinalValue - initialCapital) / initialCapital
	}
	report.TotalReturnPct = sanitize(totalReturn * 100)
	report.AnnualizedReturnPct = sanitize(annualize(totalReturn, elapsedDays(curve)))
	report.MaxDrawdownPct = sanitize(MaxDrawdownPct(curve))

	returns := DailyReturns(curve)
	report.SharpeRatio = sanitize(Sharpe(returns))
	report.SortinoRatio = sanitize(Sortino(returns))
	report.VolatilityPct = sanitize(stddev(returns) * math.Sqrt(TradingDaysPerYear) * 100)

	report.TradeStats = tradeStats(trades)
	return report
}

// DailyReturns derives simple returns between consecutive equity points
func DailyReturns(curve []contracts.EquityPoint) []float64 {
	if len(curve) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].EquityValue
		if prev <= 0 {
			// 0 이하 자산에서는 수익률 정의 불가
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, curve[i].EquityValue/prev-1)
	}
	return returns
}

// Sharpe is mean/stddev of daily returns × √252 with a zero baseline
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stddev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(TradingDaysPerYear)
}

// Sortino uses downside deviation (negative returns against zero) instead of stddev
func Sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
		}
	}
	downside := math.Sqrt(sumSq / float64(len(returns)-1))
	if downside == 0 {
		return 0
	}
	return mean(returns) / downside * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdownPct scans the curve chronologically and returns the deepest decline as a negative %
func MaxDrawdownPct(curve []contracts.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	peak := curve[0].EquityValue
	worst := 0.0
	for _, p := range curve {
		if p.EquityValue > peak {
			peak = p.EquityValue
		}
		if peak <= 0 {
			continue
		}
		dd := (p.EquityValue - peak) / peak
		if dd < worst {
			worst = dd
		}
	}
	return worst * 100
}

// annualize compounds r to a 365-day basis
func annualize(r float64, elapsed int) float64 {
	if elapsed <= 0 {
		return 0
	}
	if 1+r <= 0 {
		return -100
	}
	return (math.Pow(1+r, 365/float64(elapsed)) - 1) * 100
}

// elapsedDays 첫 평가일부터 마지막 평가일까지 달력 일수
func elapsedDays(curve []contracts.EquityPoint) int {
	if len(curve) < 2 {
		return 0
	}
	first := curve[0].Date
	last := curve[len(curve)-1].Date
	return int(math.Round(last.Sub(first).Hours() / 24))
}

func tradeStats(trades []contracts.Trade) contracts.TradeStats {
	stats := contracts.TradeStats{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return stats
	}

	var sumWin, sumLoss, sumHolding float64
	for _, t := range trades {
		sumHolding += float64(t.HoldingDays)
		if t.ExitReason.Forced() {
			stats.ForcedExits++
		}
		switch {
		case t.PnL > 0:
			stats.WinningTrades++
			stats.GrossProfit += t.PnL
			sumWin += t.ReturnPct
		case t.PnL < 0:
			stats.LosingTrades++
			stats.GrossLoss += -t.PnL
			sumLoss += t.ReturnPct
		}
	}

	stats.WinRatePct = sanitize(float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100)
	if stats.WinningTrades > 0 {
		stats.AvgWinPct = sanitize(sumWin / float64(stats.WinningTrades))
	}
	if stats.LosingTrades > 0 {
		stats.AvgLossPct = sanitize(sumLoss / float64(stats.LosingTrades))
	}
	stats.AvgHoldingDays = sanitize(sumHolding / float64(stats.TotalTrades))
	stats.ProfitFactor = profitFactor(stats.GrossProfit, stats.GrossLoss)
	stats.GrossProfit = sanitize(stats.GrossProfit)
	stats.GrossLoss = sanitize(stats.GrossLoss)
	return stats
}

// profitFactor is gross profit over gross loss; ProfitFactorCap stands in only for "no losses"
func profitFactor(grossProfit, grossLoss float64) float64 {
	switch {
	case grossLoss == 0 && grossProfit > 0:
		return ProfitFactorCap
	case grossLoss == 0:
		return 0
	}
	return sanitize(grossProfit / grossLoss)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev 표본 표준편차 (n-1)
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	variance := 0.0
	for _, x := range xs {
		d := x - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(xs)-1))
}

// sanitize NaN/Inf는 호출자에게 노출하지 않음
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
