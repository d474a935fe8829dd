package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/models"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/metrics"
)

// Config holds aggregator settings
type Config struct {
	Workers            int
	StrongRatio        float64 // strong 판정 비율 (분석 모델 수 대비)
	Lookback           int     // 캘린더 일수
	BreakerMaxFailures uint32  // 연속 패닉 시 해당 실행에서 모델 차단
}

// DefaultConfig returns the default aggregator settings
func DefaultConfig() Config {
	return Config{
		Workers:            8,
		StrongRatio:        0.6,
		Lookback:           400,
		BreakerMaxFailures: 5,
	}
}

// Request is one aggregation run
type Request struct {
	Tickers         []string           `json:"tickers"`
	ModelIDs        []string           `json:"model_ids,omitempty"` // 비우면 전체 모델
	MinConfirmation int                `json:"min_confirmation"`
	Category        contracts.Category `json:"category,omitempty"`
	AsOf            time.Time          `json:"as_of"`
}

// Aggregator runs many scoring models over a universe and buckets their agreement
// ⭐ SSOT: 멀티 모델 합의 계산은 여기서만
type Aggregator struct {
	registry *models.Registry
	store    contracts.TimeSeriesStore
	cfg      Config
	metrics  *metrics.Recorder
	logger   *logger.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(registry *models.Registry, store contracts.TimeSeriesStore, cfg Config, rec *metrics.Recorder, log *logger.Logger) *Aggregator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.StrongRatio <= 0 || cfg.StrongRatio > 1 {
		cfg.StrongRatio = DefaultConfig().StrongRatio
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultConfig().Lookback
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = DefaultConfig().BreakerMaxFailures
	}
	return &Aggregator{
		registry: registry,
		store:    store,
		cfg:      cfg,
		metrics:  rec,
		logger:   log.WithField("module", "consensus"),
	}
}

// evaluation is one model/ticker invocation outcome
type evaluation struct {
	model  int // 선택된 모델 인덱스
	signal *contracts.Signal
	err    error
}

type tickerResult struct {
	ticker string
	evals  []evaluation
}

// Aggregate runs the selected models over the universe
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*contracts.ConsensusResult, error) {
	started := time.Now()

	tickers, err := normalizeTickers(req.Tickers)
	if err != nil {
		return nil, err
	}
	if req.MinConfirmation <= 0 {
		return nil, contracts.NewConfigError("min_confirmation", "must be positive, got %d", req.MinConfirmation)
	}
	selected, err := a.registry.Select(req.ModelIDs, req.Category)
	if err != nil {
		return nil, err
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	a.logger.WithFields(map[string]interface{}{
		"tickers":          len(tickers),
		"models":           len(selected),
		"min_confirmation": req.MinConfirmation,
		"category":         string(req.Category),
		"as_of":            asOf.Format("2006-01-02"),
		"workers":          a.cfg.Workers,
	}).Info("Starting consensus aggregation")

	breakers := a.newBreakers(selected)

	// Worker pool over tickers
	tickerCh := make(chan string, len(tickers))
	resultCh := make(chan tickerResult, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < a.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			a.worker(ctx, workerID, selected, breakers, asOf, tickerCh, resultCh)
		}(i)
	}

	for _, t := range tickers {
		tickerCh <- t
	}
	close(tickerCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string][]evaluation, len(tickers))
	for r := range resultCh {
		results[r.ticker] = r.evals
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregation abandoned: %w", err)
	}

	result := a.reduce(tickers, selected, results, req.MinConfirmation, asOf)

	a.metrics.RecordCoverage(result.CoverageRatio)
	a.metrics.RecordLatency("aggregate", time.Since(started).Seconds())

	a.logger.WithFields(map[string]interface{}{
		"strong_buy":            len(result.StrongBuy),
		"moderate_buy":          len(result.ModerateBuy),
		"strong_sell":           len(result.StrongSell),
		"moderate_sell":         len(result.ModerateSell),
		"total_models_analyzed": result.TotalModelsAnalyzed,
		"skipped_models":        result.SkippedModels,
		"coverage_ratio":        result.CoverageRatio,
		"duration_ms":           time.Since(started).Milliseconds(),
	}).Info("Consensus aggregation completed")

	return result, nil
}

// modelPanic marks a model invocation that panicked
type modelPanic struct {
	model string
	value interface{}
}

func (p *modelPanic) Error() string {
	return fmt.Sprintf("model %s panicked: %v", p.model, p.value)
}

// newBreakers creates one breaker per model for this run.
// Only panics count toward tripping; a per-ticker error is a data problem, not a broken model.
// 한 번 열리면 실행이 끝날 때까지 유지
func (a *Aggregator) newBreakers(selected []contracts.ScoringModel) []*gobreaker.CircuitBreaker {
	maxFailures := a.cfg.BreakerMaxFailures
	breakers := make([]*gobreaker.CircuitBreaker, len(selected))
	for i, m := range selected {
		breakers[i] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        m.ID(),
			MaxRequests: 1,
			Interval:    0,
			Timeout:     time.Hour,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				var p *modelPanic
				return !errors.As(err, &p)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				a.logger.WithFields(map[string]interface{}{
					"model": name,
					"from":  from.String(),
					"to":    to.String(),
				}).Warn("Model circuit breaker state changed")
			},
		})
	}
	return breakers
}

// worker evaluates every selected model for tickers from tickerCh
func (a *Aggregator) worker(
	ctx context.Context,
	workerID int,
	selected []contracts.ScoringModel,
	breakers []*gobreaker.CircuitBreaker,
	asOf time.Time,
	tickerCh <-chan string,
	resultCh chan<- tickerResult,
) {
	from := asOf.AddDate(0, 0, -a.cfg.Lookback)

	for ticker := range tickerCh {
		// 호출자 취소 시 남은 종목은 건너뜀
		if ctx.Err() != nil {
			resultCh <- tickerResult{ticker: ticker}
			continue
		}

		history, err := contracts.LoadHistory(ctx, a.store, ticker, from, asOf)
		if err != nil {
			// 데이터 없음으로 취급, 배치는 계속
			a.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"ticker": ticker,
			}).Warn("Failed to load history")
			resultCh <- tickerResult{ticker: ticker}
			continue
		}
		history = history.Until(asOf)

		evals := make([]evaluation, 0, len(selected))
		for i, m := range selected {
			if !models.Ready(m, history) {
				a.metrics.RecordModelInvocation(m.ID(), "no_data")
				continue
			}

			sig, err := invoke(ctx, breakers[i], m, ticker, asOf, history)
			switch {
			case err != nil:
				a.metrics.RecordModelInvocation(m.ID(), "error")
				a.logger.WithError(err).WithFields(map[string]interface{}{
					"model":  m.ID(),
					"ticker": ticker,
				}).Warn("Model invocation failed")
			case sig == nil:
				a.metrics.RecordModelInvocation(m.ID(), "no_data")
			default:
				a.metrics.RecordModelInvocation(m.ID(), "signal")
				if a.logger.DebugEnabled() {
					a.logger.WithFields(map[string]interface{}{
						"model":  m.ID(),
						"ticker": ticker,
						"type":   string(sig.Type),
						"score":  sig.Score,
					}).Debug("Model signal")
				}
			}
			evals = append(evals, evaluation{model: i, signal: sig, err: err})
		}
		resultCh <- tickerResult{ticker: ticker, evals: evals}
	}
}

// invoke calls the model through its breaker; panics become errors
func invoke(
	ctx context.Context,
	cb *gobreaker.CircuitBreaker,
	m contracts.ScoringModel,
	ticker string,
	asOf time.Time,
	history *contracts.History,
) (*contracts.Signal, error) {
	out, err := cb.Execute(func() (res interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &modelPanic{model: m.ID(), value: r}
			}
		}()

		sig, err := m.Evaluate(ctx, ticker, asOf, history)
		if err != nil {
			return nil, err
		}
		if err := sig.Check(ticker); err != nil {
			return nil, fmt.Errorf("model %s: %w", m.ID(), err)
		}
		return sig, nil
	})
	if err != nil {
		return nil, err
	}

	sig, _ := out.(*contracts.Signal)
	if sig != nil {
		sig.ModelID = m.ID()
	}
	return sig, nil
}

func normalizeTickers(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, contracts.NewConfigError("tickers", "universe is empty")
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, contracts.NewConfigError("tickers", "empty ticker")
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
