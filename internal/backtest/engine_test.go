package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/models"
	"github.com/wonny/screener/internal/s0_data"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/metrics"
)

// 2024-01-01은 월요일
var (
	windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

// seriesBars builds one bar per trading day; skip drops day indexes
func seriesBars(days []time.Time, price func(i int) float64, skip ...int) []contracts.Bar {
	skipped := make(map[int]bool, len(skip))
	for _, i := range skip {
		skipped[i] = true
	}
	bars := make([]contracts.Bar, 0, len(days))
	for i, d := range days {
		if skipped[i] {
			continue
		}
		p := price(i)
		bars = append(bars, contracts.Bar{Date: d, Open: p, High: p, Low: p, Close: p, Volume: 1000})
	}
	return bars
}

func linear(base float64) func(int) float64 {
	return func(i int) float64 { return base + float64(i) }
}

// buyOn returns a model that buys a ticker on the given dates with a fixed score
func buyOn(id string, scores map[string]float64, dates ...time.Time) *models.Func {
	return &models.Func{
		ModelID: id,
		Cat:     contracts.CategoryTechnical,
		Fn: func(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
			matched := len(dates) == 0
			for _, d := range dates {
				if d.Equal(asOf) {
					matched = true
				}
			}
			score, ok := scores[ticker]
			if !matched || !ok {
				return nil, nil
			}
			bar, _ := h.Last()
			return &contracts.Signal{
				Ticker:        ticker,
				Type:          contracts.SignalBuy,
				Score:         score,
				PriceAtSignal: bar.Close,
				AsOf:          asOf,
			}, nil
		},
	}
}

func newEngine(store contracts.TimeSeriesStore) *Engine {
	return NewEngine(store, metrics.New(), logger.NewNop())
}

func baseConfig(tickers ...string) Config {
	return Config{
		Tickers:           tickers,
		StartDate:         windowStart,
		EndDate:           windowEnd,
		InitialCapital:    1000,
		HoldingPeriodDays: 5,
		TopN:              1,
	}
}

func TestTradingDays(t *testing.T) {
	days := TradingDays(windowStart, windowStart.AddDate(0, 0, 13))
	assert.Len(t, days, 10)
	for _, d := range days {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}

	saturday := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, TradingDays(saturday, saturday.AddDate(0, 0, 1)))
	assert.Len(t, TradingDays(windowStart, windowEnd), 23)
}

func TestRun_SingleSignalHoldingPeriod(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)

	model := buyOn("once", map[string]float64{"AAA": 80}, days[0])
	result, err := newEngine(store).Run(context.Background(), model, baseConfig("AAA"))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, 100.0, trade.EntryPrice)
	assert.Equal(t, days[0], trade.EntryDate)
	assert.Equal(t, days[5], trade.ExitDate)
	assert.Equal(t, 105.0, trade.ExitPrice)
	assert.Equal(t, 5, trade.HoldingDays)
	assert.Equal(t, contracts.ExitHoldingPeriod, trade.ExitReason)
	assert.InDelta(t, 50.0, trade.PnL, 1e-9)
	assert.InDelta(t, 5.0, trade.ReturnPct, 1e-9)
	assert.Equal(t, 80.0, trade.EntryScore)

	assert.Len(t, result.EquityCurve, len(days))
	assert.Equal(t, len(days), result.TradingDays)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "once", result.ModelID)
	assert.InDelta(t, 1050.0, result.Report.FinalValue, 1e-9)
	assert.InDelta(t, 5.0, result.Report.TotalReturnPct, 1e-9)
	assert.Equal(t, 1, result.Report.TradeStats.TotalTrades)
}

func TestRun_ZeroSignalsFlatCurve(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)

	silent := &models.Func{
		ModelID: "silent",
		Fn: func(context.Context, string, time.Time, *contracts.History) (*contracts.Signal, error) {
			return nil, nil
		},
	}
	result, err := newEngine(store).Run(context.Background(), silent, baseConfig("AAA"))
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	require.Len(t, result.EquityCurve, len(days))
	for _, p := range result.EquityCurve {
		assert.Equal(t, 1000.0, p.EquityValue)
	}
	assert.Equal(t, 1000.0, result.Report.FinalValue)
	assert.Zero(t, result.Report.SharpeRatio)
	assert.Zero(t, result.Report.MaxDrawdownPct)
	assert.Zero(t, result.Report.TradeStats.WinRatePct)
	assert.Zero(t, result.Report.TradeStats.ProfitFactor)
}

func TestRun_TradeInvariants(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)
	store.AddBars("BBB", seriesBars(days, func(i int) float64 { return 200 - float64(i) })...)
	store.AddBars("CCC", seriesBars(days, func(i int) float64 { return 50 + float64(i%3) })...)

	model := buyOn("always", map[string]float64{"AAA": 90, "BBB": 70, "CCC": 80})
	cfg := baseConfig("AAA", "BBB", "CCC")
	cfg.HoldingPeriodDays = 3
	cfg.TopN = 2

	result, err := newEngine(store).Run(context.Background(), model, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)
	assert.Len(t, result.EquityCurve, len(days))

	lastExit := map[string]time.Time{}
	for _, tr := range result.Trades {
		assert.True(t, tr.ExitDate.After(tr.EntryDate), "%s exit must follow entry", tr.Ticker)
		if !tr.ExitReason.Forced() {
			assert.Equal(t, cfg.HoldingPeriodDays, tr.HoldingDays)
		}
		// 동일 종목 중복 보유 없음
		if prev, ok := lastExit[tr.Ticker]; ok {
			assert.True(t, tr.EntryDate.After(prev), "%s re-entered before previous exit", tr.Ticker)
		}
		lastExit[tr.Ticker] = tr.ExitDate
		// 상위 2개 점수만 진입
		assert.NotEqual(t, "BBB", tr.Ticker)
	}

	for i, p := range result.EquityCurve {
		assert.Equal(t, days[i], p.Date)
		assert.LessOrEqual(t, p.OpenPositions, cfg.TopN)
	}
	assert.Zero(t, result.EquityCurve[len(days)-1].OpenPositions)
}

func TestRun_TopNEqualWeight(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	for _, ticker := range []string{"AAA", "BBB", "CCC"} {
		store.AddBars(ticker, seriesBars(days, func(int) float64 { return 100 })...)
	}

	model := buyOn("ranked", map[string]float64{"AAA": 70, "BBB": 90, "CCC": 80}, days[0])
	cfg := baseConfig("AAA", "BBB", "CCC")
	cfg.TopN = 2

	result, err := newEngine(store).Run(context.Background(), model, cfg)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	tickers := []string{result.Trades[0].Ticker, result.Trades[1].Ticker}
	assert.ElementsMatch(t, []string{"BBB", "CCC"}, tickers)
	for _, tr := range result.Trades {
		assert.InDelta(t, 5.0, tr.Shares, 1e-9)
	}
	assert.Equal(t, 2, result.EquityCurve[0].OpenPositions)
	assert.InDelta(t, 0.0, result.EquityCurve[0].Cash, 1e-9)
}

func TestRun_EndOfWindow(t *testing.T) {
	days := TradingDays(windowStart, windowStart.AddDate(0, 0, 4))
	require.Len(t, days, 5)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)

	cfg := baseConfig("AAA")
	cfg.EndDate = days[4]
	cfg.HoldingPeriodDays = 10

	result, err := newEngine(store).Run(context.Background(), buyOn("m", map[string]float64{"AAA": 60}, days[0]), cfg)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	tr := result.Trades[0]
	assert.Equal(t, contracts.ExitEndOfWindow, tr.ExitReason)
	assert.Equal(t, days[4], tr.ExitDate)
	assert.Equal(t, 4, tr.HoldingDays)
	assert.Equal(t, 104.0, tr.ExitPrice)
	assert.Equal(t, 1, result.Report.TradeStats.ForcedExits)
}

func TestRun_NoEntryOnFinalDay(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)

	model := buyOn("late", map[string]float64{"AAA": 60}, days[len(days)-1])
	result, err := newEngine(store).Run(context.Background(), model, baseConfig("AAA"))
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestRun_DataGapDefersExit(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100), 3)...)

	cfg := baseConfig("AAA")
	cfg.HoldingPeriodDays = 3

	result, err := newEngine(store).Run(context.Background(), buyOn("m", map[string]float64{"AAA": 60}, days[0]), cfg)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	tr := result.Trades[0]
	assert.Equal(t, contracts.ExitDataGap, tr.ExitReason)
	assert.Equal(t, days[4], tr.ExitDate)
	assert.Equal(t, 4, tr.HoldingDays)
	assert.Equal(t, 104.0, tr.ExitPrice)

	// 누락일은 직전 종가로 평가
	assert.InDelta(t, 10*102.0, result.EquityCurve[3].EquityValue, 1e-9)
}

func TestRun_DelistedMidHolding(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days[:3], linear(100))...)

	result, err := newEngine(store).Run(context.Background(), buyOn("m", map[string]float64{"AAA": 60}, days[0]), baseConfig("AAA"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	tr := result.Trades[0]
	assert.Equal(t, contracts.ExitDelisted, tr.ExitReason)
	assert.Equal(t, days[3], tr.ExitDate)
	assert.Equal(t, 102.0, tr.ExitPrice)
	assert.True(t, tr.ExitReason.Forced())

	last := result.EquityCurve[len(result.EquityCurve)-1]
	assert.InDelta(t, 1020.0, last.EquityValue, 1e-9)
}

func TestRun_NoLookAhead(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)
	store.AddFundamentals("AAA", contracts.Fundamentals{Date: days[10], PER: contracts.Float(12)})

	peek := &models.Func{
		ModelID: "peek",
		Fn: func(_ context.Context, _ string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
			for _, b := range h.Bars {
				if b.Date.After(asOf) {
					return nil, fmt.Errorf("bar %s visible at %s", b.Date, asOf)
				}
			}
			for _, f := range h.Fundamentals {
				if f.Date.After(asOf) {
					return nil, fmt.Errorf("fundamentals %s visible at %s", f.Date, asOf)
				}
			}
			return nil, nil
		},
	}
	result, err := newEngine(store).Run(context.Background(), peek, baseConfig("AAA"))
	require.NoError(t, err)
	assert.Zero(t, result.Failures)
}

func TestRun_ModelFailuresExcludePairOnly(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)
	store.AddBars("BAD", seriesBars(days, linear(100))...)

	ok := buyOn("inner", map[string]float64{"AAA": 60}, days[0])
	flaky := &models.Func{
		ModelID: "flaky",
		Fn: func(ctx context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
			if ticker == "BAD" {
				if asOf.Day()%2 == 0 {
					panic("boom")
				}
				return nil, errors.New("upstream failure")
			}
			return ok.Evaluate(ctx, ticker, asOf, h)
		},
	}

	result, err := newEngine(store).Run(context.Background(), flaky, baseConfig("AAA", "BAD"))
	require.NoError(t, err)
	assert.Equal(t, len(days), result.Failures)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, "AAA", result.Trades[0].Ticker)
}

func TestRun_MalformedSignalsCountAsFailures(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)

	tests := []struct {
		name string
		sig  contracts.Signal
	}{
		{"NaN score", contracts.Signal{Type: contracts.SignalBuy, Score: math.NaN()}},
		{"infinite score", contracts.Signal{Type: contracts.SignalBuy, Score: math.Inf(1)}},
		{"signal for another ticker", contracts.Signal{Ticker: "AAA", Type: contracts.SignalBuy, Score: 99}},
		{"unknown type", contracts.Signal{Type: "hold", Score: 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := s0_data.NewMemoryStore()
			store.AddBars("AAA", seriesBars(days, linear(100))...)
			store.AddBars("BAD", seriesBars(days, linear(100))...)

			ok := buyOn("inner", map[string]float64{"AAA": 60}, days[0])
			model := &models.Func{
				ModelID: "malformed",
				Fn: func(ctx context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
					if ticker == "BAD" {
						if !asOf.Equal(days[0]) {
							return nil, nil
						}
						sig := tt.sig
						return &sig, nil
					}
					return ok.Evaluate(ctx, ticker, asOf, h)
				},
			}

			result, err := newEngine(store).Run(context.Background(), model, baseConfig("AAA", "BAD"))
			require.NoError(t, err)
			assert.Equal(t, 1, result.Failures)
			require.Len(t, result.Trades, 1)
			assert.Equal(t, "AAA", result.Trades[0].Ticker)
			assert.Equal(t, 60.0, result.Trades[0].EntryScore)
		})
	}
}

func TestRun_CostsApplied(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, func(int) float64 { return 100 })...)

	cfg := baseConfig("AAA")
	cfg.CommissionRate = 0.01
	cfg.SlippageRate = 0.01

	result, err := newEngine(store).Run(context.Background(), buyOn("m", map[string]float64{"AAA": 60}, days[0]), cfg)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	tr := result.Trades[0]
	assert.Greater(t, tr.Commission, 0.0)
	assert.InDelta(t, 101.0, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 99.0, tr.ExitPrice, 1e-9)
	assert.Less(t, tr.PnL, 0.0)
	assert.Less(t, result.Report.FinalValue, 1000.0)
}

func TestRun_ConfigErrors(t *testing.T) {
	model := buyOn("m", map[string]float64{})
	saturday := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"empty universe", func(c *Config) { c.Tickers = nil }, "tickers"},
		{"blank ticker", func(c *Config) { c.Tickers = []string{"AAA", " "} }, "tickers"},
		{"zero holding", func(c *Config) { c.HoldingPeriodDays = 0 }, "holding_period_days"},
		{"negative top n", func(c *Config) { c.TopN = -1 }, "top_n"},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }, "initial_capital"},
		{"end before start", func(c *Config) { c.EndDate = c.StartDate.AddDate(0, 0, -1) }, "end_date"},
		{"weekend only", func(c *Config) { c.StartDate, c.EndDate = saturday, saturday.AddDate(0, 0, 1) }, "start_date"},
		{"negative commission", func(c *Config) { c.CommissionRate = -0.1 }, "commission_rate"},
		{"negative slippage", func(c *Config) { c.SlippageRate = -0.1 }, "slippage_rate"},
	}

	engine := newEngine(s0_data.NewMemoryStore())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig("AAA")
			tt.mutate(&cfg)
			_, err := engine.Run(context.Background(), model, cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrInvalidConfig))

			var cfgErr *contracts.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	_, err := engine.Run(context.Background(), nil, baseConfig("AAA"))
	assert.True(t, contracts.IsConfigError(err))
}

func TestRun_Cancelled(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(store).Run(ctx, buyOn("m", map[string]float64{"AAA": 60}), baseConfig("AAA"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, contracts.IsConfigError(err))
}

func TestRun_BuiltinModel(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	all := TradingDays(start, windowEnd)
	store := s0_data.NewMemoryStore()
	price := 100.0
	store.AddBars("UP", seriesBars(all, func(int) float64 {
		price *= 1.01
		return price
	})...)

	registry := models.DefaultRegistry(logger.NewNop())
	momentum, ok := registry.Get("momentum")
	require.True(t, ok)

	result, err := newEngine(store).Run(context.Background(), momentum, baseConfig("UP"))
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)
	assert.Greater(t, result.Report.TotalReturnPct, 0.0)
}

func TestRunMany(t *testing.T) {
	days := TradingDays(windowStart, windowEnd)
	store := s0_data.NewMemoryStore()
	store.AddBars("AAA", seriesBars(days, linear(100))...)

	ms := []contracts.ScoringModel{
		buyOn("first", map[string]float64{"AAA": 60}, days[0]),
		buyOn("second", map[string]float64{"AAA": 60}, days[1], days[10]),
		buyOn("third", map[string]float64{}),
	}
	results, err := newEngine(store).RunMany(context.Background(), ms, baseConfig("AAA"), 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "first", results[0].ModelID)
	assert.Equal(t, "second", results[1].ModelID)
	assert.Equal(t, "third", results[2].ModelID)
	assert.Len(t, results[0].Trades, 1)
	assert.Len(t, results[1].Trades, 2)
	assert.Empty(t, results[2].Trades)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)

	_, err = newEngine(store).RunMany(context.Background(), nil, baseConfig("AAA"), 2)
	assert.True(t, contracts.IsConfigError(err))
}
