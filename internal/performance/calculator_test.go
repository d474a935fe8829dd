package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func curveOf(values ...float64) []contracts.EquityPoint {
	curve := make([]contracts.EquityPoint, len(values))
	for i, v := range values {
		curve[i] = contracts.EquityPoint{Date: day0.AddDate(0, 0, i), EquityValue: v}
	}
	return curve
}

func assertFinite(t *testing.T, r contracts.PerformanceReport) {
	t.Helper()
	for name, v := range map[string]float64{
		"total":      r.TotalReturnPct,
		"annualized": r.AnnualizedReturnPct,
		"drawdown":   r.MaxDrawdownPct,
		"sharpe":     r.SharpeRatio,
		"sortino":    r.SortinoRatio,
		"volatility": r.VolatilityPct,
		"win_rate":   r.TradeStats.WinRatePct,
		"pf":         r.TradeStats.ProfitFactor,
		"avg_win":    r.TradeStats.AvgWinPct,
		"avg_loss":   r.TradeStats.AvgLossPct,
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is not finite: %v", name, v)
	}
}

func TestSummarize_Degenerate(t *testing.T) {
	t.Run("no trades, no curve", func(t *testing.T) {
		r := Summarize(nil, nil, 1_000_000)
		assert.Equal(t, 1_000_000.0, r.FinalValue)
		assert.Zero(t, r.TradeStats.WinRatePct)
		assert.Zero(t, r.TradeStats.ProfitFactor)
		assert.Zero(t, r.MaxDrawdownPct)
		assert.Zero(t, r.SharpeRatio)
		assert.Zero(t, r.AnnualizedReturnPct)
		assertFinite(t, r)
	})

	t.Run("flat curve", func(t *testing.T) {
		r := Summarize(nil, curveOf(1000, 1000, 1000, 1000), 1000)
		assert.Equal(t, 1000.0, r.FinalValue)
		assert.Zero(t, r.SharpeRatio)
		assert.Zero(t, r.SortinoRatio)
		assert.Zero(t, r.VolatilityPct)
		assert.Zero(t, r.MaxDrawdownPct)
		assert.Zero(t, r.TotalReturnPct)
		assertFinite(t, r)
	})

	t.Run("single point", func(t *testing.T) {
		r := Summarize(nil, curveOf(1100), 1000)
		assert.InDelta(t, 10.0, r.TotalReturnPct, 1e-9)
		assert.Zero(t, r.AnnualizedReturnPct)
		assert.Zero(t, r.SharpeRatio)
	})

	t.Run("zero capital", func(t *testing.T) {
		r := Summarize(nil, curveOf(0, 0), 0)
		assertFinite(t, r)
	})
}

func TestSummarize_Idempotent(t *testing.T) {
	trades := []contracts.Trade{
		{Ticker: "A", PnL: 100, ReturnPct: 10, HoldingDays: 5, ExitReason: contracts.ExitHoldingPeriod},
		{Ticker: "B", PnL: -50, ReturnPct: -5, HoldingDays: 5, ExitReason: contracts.ExitHoldingPeriod},
	}
	curve := curveOf(1000, 1010, 990, 1050)

	first := Summarize(trades, curve, 1000)
	second := Summarize(trades, curve, 1000)
	assert.Equal(t, first, second)
}

func TestSummarize_Returns(t *testing.T) {
	curve := []contracts.EquityPoint{
		{Date: day0, EquityValue: 1000},
		{Date: day0.AddDate(0, 0, 365), EquityValue: 1200},
	}
	r := Summarize(nil, curve, 1000)
	assert.InDelta(t, 20.0, r.TotalReturnPct, 1e-9)
	assert.InDelta(t, 20.0, r.AnnualizedReturnPct, 1e-9)

	half := []contracts.EquityPoint{
		{Date: day0, EquityValue: 1000},
		{Date: day0.AddDate(0, 0, 73), EquityValue: 1100},
	}
	r = Summarize(nil, half, 1000)
	assert.InDelta(t, (math.Pow(1.1, 5)-1)*100, r.AnnualizedReturnPct, 1e-9)

	wiped := []contracts.EquityPoint{
		{Date: day0, EquityValue: 1000},
		{Date: day0.AddDate(0, 0, 10), EquityValue: 0},
	}
	r = Summarize(nil, wiped, 1000)
	assert.Equal(t, -100.0, r.AnnualizedReturnPct)
	assert.Equal(t, -100.0, r.TotalReturnPct)
}

func TestMaxDrawdownPct_RespectsOrder(t *testing.T) {
	// 저점이 고점보다 먼저 오면 낙폭 아님
	assert.Zero(t, MaxDrawdownPct(curveOf(80, 90, 100, 120)))

	assert.InDelta(t, -50.0, MaxDrawdownPct(curveOf(100, 200, 100, 150)), 1e-9)
	assert.InDelta(t, -25.0, MaxDrawdownPct(curveOf(100, 75, 200, 180)), 1e-9)

	dd := MaxDrawdownPct(curveOf(100, 120, 90, 130, 65))
	assert.InDelta(t, -50.0, dd, 1e-9)
	assert.LessOrEqual(t, dd, 0.0)
}

func TestSharpe(t *testing.T) {
	assert.Zero(t, Sharpe(nil))
	assert.Zero(t, Sharpe([]float64{0.01}))
	assert.Zero(t, Sharpe([]float64{0.01, 0.01, 0.01}))

	returns := []float64{0.01, -0.005, 0.02, 0.0}
	m := (0.01 - 0.005 + 0.02) / 4
	var v float64
	for _, r := range returns {
		v += (r - m) * (r - m)
	}
	sd := math.Sqrt(v / 3)
	assert.InDelta(t, m/sd*math.Sqrt(252), Sharpe(returns), 1e-12)
}

func TestSortino_NoDownside(t *testing.T) {
	assert.Zero(t, Sortino([]float64{0.01, 0.02, 0.03}))
	assert.Greater(t, Sortino([]float64{0.02, -0.01, 0.03}), 0.0)
}

func TestDailyReturns(t *testing.T) {
	returns := DailyReturns(curveOf(100, 110, 99))
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.1, returns[0], 1e-12)
	assert.InDelta(t, -0.1, returns[1], 1e-12)

	assert.Empty(t, DailyReturns(curveOf(100)))
}

func TestTradeStats(t *testing.T) {
	trades := []contracts.Trade{
		{PnL: 200, ReturnPct: 20, HoldingDays: 5, ExitReason: contracts.ExitHoldingPeriod},
		{PnL: 100, ReturnPct: 10, HoldingDays: 5, ExitReason: contracts.ExitHoldingPeriod},
		{PnL: -100, ReturnPct: -10, HoldingDays: 3, ExitReason: contracts.ExitEndOfWindow},
		{PnL: 0, ReturnPct: 0, HoldingDays: 7, ExitReason: contracts.ExitDataGap},
	}
	stats := Summarize(trades, nil, 1000).TradeStats

	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 2, stats.WinningTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.InDelta(t, 50.0, stats.WinRatePct, 1e-9)
	assert.InDelta(t, 15.0, stats.AvgWinPct, 1e-9)
	assert.InDelta(t, -10.0, stats.AvgLossPct, 1e-9)
	assert.InDelta(t, 3.0, stats.ProfitFactor, 1e-9)
	assert.InDelta(t, 300.0, stats.GrossProfit, 1e-9)
	assert.InDelta(t, 100.0, stats.GrossLoss, 1e-9)
	assert.InDelta(t, 5.0, stats.AvgHoldingDays, 1e-9)
	assert.Equal(t, 2, stats.ForcedExits)
}

func TestProfitFactor(t *testing.T) {
	tests := []struct {
		name   string
		profit float64
		loss   float64
		want   float64
	}{
		{"both zero", 0, 0, 0},
		{"no losses", 500, 0, ProfitFactorCap},
		{"no profits", 0, 100, 0},
		{"ratio", 300, 150, 2},
		{"ratio above no-loss sentinel", 2000, 1, 2000},
		{"large finite ratio", 1e9, 1, 1e9},
		{"tiny loss", 500, 1e-3, 500000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, profitFactor(tt.profit, tt.loss), 1e-9)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Zero(t, sanitize(math.NaN()))
	assert.Zero(t, sanitize(math.Inf(1)))
	assert.Zero(t, sanitize(math.Inf(-1)))
	assert.Equal(t, 1.5, sanitize(1.5))
}
