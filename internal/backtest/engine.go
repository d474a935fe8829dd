package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/models"
	"github.com/wonny/screener/internal/performance"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/metrics"
)

// DefaultLookback is the calendar-day history loaded before StartDate
const DefaultLookback = 400

// Engine replays one model over a date range
// ⭐ SSOT: 백테스트 일자 루프는 여기서만
type Engine struct {
	store   contracts.TimeSeriesStore
	metrics *metrics.Recorder
	logger  *logger.Logger
}

// Config holds backtest configuration
type Config struct {
	Tickers           []string  `json:"tickers"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	InitialCapital    float64   `json:"initial_capital"`
	HoldingPeriodDays int       `json:"holding_period_days"` // 거래일
	TopN              int       `json:"top_n"`
	Lookback          int       `json:"lookback,omitempty"`        // 캘린더 일수, 0이면 기본값
	CommissionRate    float64   `json:"commission_rate,omitempty"` // e.g., 0.00015
	SlippageRate      float64   `json:"slippage_rate,omitempty"`   // e.g., 0.001
}

// Result holds backtest results
type Result struct {
	RunID       string                      `json:"run_id"`
	ModelID     string                      `json:"model_id"`
	StartDate   time.Time                   `json:"start_date"`
	EndDate     time.Time                   `json:"end_date"`
	TradingDays int                         `json:"trading_days"`
	Trades      []contracts.Trade           `json:"trades"`
	EquityCurve []contracts.EquityPoint     `json:"equity_curve"`
	Report      contracts.PerformanceReport `json:"report"`
	Failures    int                         `json:"failures"` // 모델 호출 실패 (제외된 종목/일자)
	Duration    time.Duration               `json:"duration"`
}

// NewEngine creates a new backtest engine
func NewEngine(store contracts.TimeSeriesStore, rec *metrics.Recorder, log *logger.Logger) *Engine {
	return &Engine{
		store:   store,
		metrics: rec,
		logger:  log.WithField("module", "backtest"),
	}
}

// Validate rejects unusable configurations
func (c Config) Validate() error {
	if len(c.Tickers) == 0 {
		return contracts.NewConfigError("tickers", "universe is empty")
	}
	for _, t := range c.Tickers {
		if strings.TrimSpace(t) == "" {
			return contracts.NewConfigError("tickers", "empty ticker")
		}
	}
	if c.HoldingPeriodDays <= 0 {
		return contracts.NewConfigError("holding_period_days", "must be positive, got %d", c.HoldingPeriodDays)
	}
	if c.TopN <= 0 {
		return contracts.NewConfigError("top_n", "must be positive, got %d", c.TopN)
	}
	if c.InitialCapital <= 0 {
		return contracts.NewConfigError("initial_capital", "must be positive, got %v", c.InitialCapital)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return contracts.NewConfigError("start_date", "start and end dates are required")
	}
	if Day(c.EndDate).Before(Day(c.StartDate)) {
		return contracts.NewConfigError("end_date", "before start_date")
	}
	if len(TradingDays(c.StartDate, c.EndDate)) == 0 {
		return contracts.NewConfigError("start_date", "window contains no trading days")
	}
	if c.Lookback < 0 {
		return contracts.NewConfigError("lookback", "must not be negative")
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return contracts.NewConfigError("commission_rate", "must be in [0, 1), got %v", c.CommissionRate)
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return contracts.NewConfigError("slippage_rate", "must be in [0, 1), got %v", c.SlippageRate)
	}
	return nil
}

type candidate struct {
	ticker string
	score  float64
	price  float64
}

// Run executes one backtest
func (e *Engine) Run(ctx context.Context, model contracts.ScoringModel, config Config) (*Result, error) {
	if model == nil {
		return nil, contracts.NewConfigError("model", "required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	tickers := uniqueSorted(config.Tickers)
	days := TradingDays(config.StartDate, config.EndDate)
	lookback := config.Lookback
	if lookback == 0 {
		lookback = DefaultLookback
	}

	result := &Result{
		RunID:       uuid.NewString(),
		ModelID:     model.ID(),
		StartDate:   days[0],
		EndDate:     days[len(days)-1],
		TradingDays: len(days),
		EquityCurve: make([]contracts.EquityPoint, 0, len(days)),
	}
	log := e.logger.WithFields(map[string]interface{}{
		"model":  model.ID(),
		"run_id": result.RunID,
	})

	log.WithFields(map[string]interface{}{
		"start_date":   result.StartDate.Format("2006-01-02"),
		"end_date":     result.EndDate.Format("2006-01-02"),
		"tickers":      len(tickers),
		"holding_days": config.HoldingPeriodDays,
		"top_n":        config.TopN,
		"capital":      config.InitialCapital,
	}).Info("Starting backtest")

	histories, err := e.loadHistories(ctx, tickers, days[0].AddDate(0, 0, -lookback), days[len(days)-1])
	if err != nil {
		e.metrics.RecordBacktest(model.ID(), "error")
		return nil, err
	}

	sim := NewSimulator(config.InitialCapital, config.CommissionRate, config.SlippageRate)
	last := len(days) - 1

	for i, d := range days {
		if err := ctx.Err(); err != nil {
			e.metrics.RecordBacktest(model.ID(), "cancelled")
			return nil, fmt.Errorf("backtest abandoned at %s: %w", d.Format("2006-01-02"), err)
		}

		// 1. 시그널 생성 (d 종가 보유 종목만)
		candidates := e.signals(ctx, log, model, tickers, histories, sim, d, result)

		// 2. 진입 (마지막 거래일에는 진입 불가)
		if i < last {
			e.enter(log, sim, candidates, config.TopN, d, i)
		}

		// 3. 보유기간 만기 / 데이터 소멸 청산
		for _, ticker := range sim.OpenTickers() {
			e.evaluateExit(log, sim, histories[ticker], ticker, d, i, config.HoldingPeriodDays)
		}

		// 4. 윈도우 종료 강제청산
		if i == last {
			for _, ticker := range sim.OpenTickers() {
				pos, _ := sim.Position(ticker)
				e.exit(log, sim, ticker, d, i, pos.LastPrice, contracts.ExitEndOfWindow)
			}
		}

		// 5. 평가 (carry-forward)
		result.EquityCurve = append(result.EquityCurve, contracts.EquityPoint{
			Date:          d,
			EquityValue:   sim.Equity(),
			Cash:          sim.Cash(),
			OpenPositions: sim.OpenCount(),
		})
	}

	result.Trades = sim.Trades()
	result.Report = performance.Summarize(result.Trades, result.EquityCurve, config.InitialCapital)
	result.Duration = time.Since(started)

	e.metrics.RecordBacktest(model.ID(), "ok")
	e.metrics.RecordLatency("backtest", result.Duration.Seconds())

	log.WithDuration("duration", result.Duration).WithFields(map[string]interface{}{
		"trading_days": result.TradingDays,
		"trades":       len(result.Trades),
		"failures":     result.Failures,
		"total_return": fmt.Sprintf("%.2f%%", result.Report.TotalReturnPct),
		"sharpe_ratio": fmt.Sprintf("%.2f", result.Report.SharpeRatio),
		"max_drawdown": fmt.Sprintf("%.2f%%", result.Report.MaxDrawdownPct),
	}).Info("Backtest completed")

	return result, nil
}

// loadHistories loads every ticker once for the whole window
// 로드 실패 종목은 데이터 없음으로 취급
func (e *Engine) loadHistories(ctx context.Context, tickers []string, from, to time.Time) (map[string]*contracts.History, error) {
	histories := make(map[string]*contracts.History, len(tickers))
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load histories: %w", err)
		}
		h, err := contracts.LoadHistory(ctx, e.store, ticker, from, to)
		if err != nil {
			e.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to load history")
			h = contracts.NewHistory(ticker, nil, nil)
		}
		histories[ticker] = h
	}
	return histories, nil
}

// signals evaluates the model for every ticker trading on d and ranks buys
func (e *Engine) signals(
	ctx context.Context,
	log *logger.Logger,
	model contracts.ScoringModel,
	tickers []string,
	histories map[string]*contracts.History,
	sim *Simulator,
	d time.Time,
	result *Result,
) []candidate {
	candidates := []candidate{}
	for _, ticker := range tickers {
		h := histories[ticker]
		bar, ok := h.BarOn(d)
		if !ok {
			continue
		}
		sim.Mark(ticker, bar.Close)

		view := h.Until(d)
		if !models.Ready(model, view) {
			continue
		}

		sig, err := evaluate(ctx, model, ticker, d, view)
		if err != nil {
			result.Failures++
			e.metrics.RecordModelInvocation(model.ID(), "error")
			log.WithError(err).WithFields(map[string]interface{}{
				"ticker": ticker,
				"date":   d.Format("2006-01-02"),
			}).Warn("Model invocation failed")
			continue
		}
		if sig == nil {
			e.metrics.RecordModelInvocation(model.ID(), "no_data")
			continue
		}
		e.metrics.RecordModelInvocation(model.ID(), "signal")
		if !sig.IsBuy() {
			continue
		}

		price := sig.PriceAtSignal
		if price <= 0 {
			price = bar.Close
		}
		candidates = append(candidates, candidate{ticker: ticker, score: sig.Score, price: price})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ticker < candidates[j].ticker
	})
	return candidates
}

// enter opens the top-ranked candidates into free slots with equal capital per slot
func (e *Engine) enter(log *logger.Logger, sim *Simulator, candidates []candidate, topN int, d time.Time, dayIndex int) {
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	for _, c := range candidates {
		open := sim.OpenCount()
		if open >= topN {
			return
		}
		if sim.Holds(c.ticker) {
			continue
		}
		amount := sim.Cash() / float64(topN-open)
		if err := sim.Buy(c.ticker, d, dayIndex, c.price, amount, c.score); err != nil {
			log.WithError(err).WithField("ticker", c.ticker).Warn("Entry skipped")
			continue
		}
		log.WithFields(map[string]interface{}{
			"ticker": c.ticker,
			"date":   d.Format("2006-01-02"),
			"price":  c.price,
			"score":  c.score,
		}).Debug("Position opened")
	}
}

// evaluateExit closes a position that reached its holding period or lost its data
func (e *Engine) evaluateExit(log *logger.Logger, sim *Simulator, h *contracts.History, ticker string, d time.Time, dayIndex, holdingDays int) {
	pos, ok := sim.Position(ticker)
	if !ok || dayIndex <= pos.EntryIndex {
		return
	}

	bar, hasBar := h.BarOn(d)
	if !hasBar && !h.HasBarFrom(d) {
		// 이후 데이터 없음: 마지막 관측가로 청산
		e.exit(log, sim, ticker, d, dayIndex, pos.LastPrice, contracts.ExitDelisted)
		return
	}
	if dayIndex-pos.EntryIndex < holdingDays && !pos.Deferred {
		return
	}
	if !hasBar {
		pos.Deferred = true
		return
	}

	reason := contracts.ExitHoldingPeriod
	if pos.Deferred {
		reason = contracts.ExitDataGap
	}
	e.exit(log, sim, ticker, d, dayIndex, bar.Close, reason)
}

func (e *Engine) exit(log *logger.Logger, sim *Simulator, ticker string, d time.Time, dayIndex int, price float64, reason contracts.ExitReason) {
	trade, err := sim.Sell(ticker, d, dayIndex, price, reason)
	if err != nil {
		log.WithError(err).WithField("ticker", ticker).Error("Exit failed")
		return
	}
	e.metrics.RecordTrade(string(reason))
	log.WithFields(map[string]interface{}{
		"ticker":       ticker,
		"date":         d.Format("2006-01-02"),
		"reason":       string(reason),
		"return_pct":   trade.ReturnPct,
		"holding_days": trade.HoldingDays,
	}).Debug("Position closed")
}

// evaluate calls the model; panics become errors
func evaluate(ctx context.Context, m contracts.ScoringModel, ticker string, asOf time.Time, h *contracts.History) (sig *contracts.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig, err = nil, fmt.Errorf("model %s panicked: %v", m.ID(), r)
		}
	}()

	sig, err = m.Evaluate(ctx, ticker, asOf, h)
	if err != nil {
		return nil, err
	}
	if err := sig.Check(ticker); err != nil {
		return nil, fmt.Errorf("model %s: %w", m.ID(), err)
	}
	return sig, nil
}

// RunMany runs independent backtests concurrently, one per model
// 결과는 입력 모델 순서 유지
func (e *Engine) RunMany(ctx context.Context, ms []contracts.ScoringModel, config Config, workers int) ([]*Result, error) {
	if len(ms) == 0 {
		return nil, contracts.NewConfigError("models", "no models selected")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	type job struct {
		index int
		model contracts.ScoringModel
	}
	type outcome struct {
		index  int
		result *Result
		err    error
	}

	jobs := make(chan job, len(ms))
	outcomes := make(chan outcome, len(ms))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := e.Run(ctx, j.model, config)
				outcomes <- outcome{index: j.index, result: res, err: err}
			}
		}()
	}

	for i, m := range ms {
		jobs <- job{index: i, model: m}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]*Result, len(ms))
	var firstErr error
	for o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("backtest %s: %w", modelID(ms[o.index]), o.err)
			}
			continue
		}
		results[o.index] = o.result
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func modelID(m contracts.ScoringModel) string {
	if m == nil {
		return "<nil>"
	}
	return m.ID()
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
