package quality

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/screener/internal/contracts"
)

// Coverage keys
const (
	CoveragePrice        = "price"
	CoverageVolume       = "volume"
	CoverageFundamentals = "fundamentals"
	CoverageHistory      = "history"
)

// QualityGate measures how much of the store universe is usable on a date
type QualityGate struct {
	store  contracts.TimeSeriesStore
	config Config
}

// Config holds quality gate thresholds
type Config struct {
	MinPriceCoverage        float64 `yaml:"min_price_coverage"`        // 0.95
	MinVolumeCoverage       float64 `yaml:"min_volume_coverage"`       // 0.95
	MinFundamentalsCoverage float64 `yaml:"min_fundamentals_coverage"` // 0.80
	MinHistoryCoverage      float64 `yaml:"min_history_coverage"`      // 0.80
	FundamentalsMaxAge      int     `yaml:"fundamentals_max_age"`      // 달력일, 기본 90
	MinHistoryBars          int     `yaml:"min_history_bars"`          // 기본 60
}

// DefaultConfig returns the thresholds used by the CLI
func DefaultConfig() Config {
	return Config{
		MinPriceCoverage:        0.95,
		MinVolumeCoverage:       0.95,
		MinFundamentalsCoverage: 0.80,
		MinHistoryCoverage:      0.80,
		FundamentalsMaxAge:      90,
		MinHistoryBars:          60,
	}
}

// Snapshot is the result of one quality check
type Snapshot struct {
	Date         time.Time          `json:"date"`
	TotalTickers int                `json:"total_tickers"`
	ValidTickers int                `json:"valid_tickers"` // 가격+거래량+이력 모두 충족
	Coverage     map[string]float64 `json:"coverage"`
	QualityScore float64            `json:"quality_score"`
	Passed       bool               `json:"passed"`
	Failures     []string           `json:"failures,omitempty"` // 미달 커버리지 키
	Missing      []string           `json:"missing,omitempty"`  // 해당일 종가 없는 종목
}

// NewQualityGate creates a new QualityGate instance
func NewQualityGate(store contracts.TimeSeriesStore, config Config) *QualityGate {
	if config.FundamentalsMaxAge <= 0 {
		config.FundamentalsMaxAge = 90
	}
	if config.MinHistoryBars <= 0 {
		config.MinHistoryBars = 60
	}
	return &QualityGate{
		store:  store,
		config: config,
	}
}

// Check validates data coverage of every store ticker on date
// ⭐ SSOT: 백테스트/컨센서스 전 데이터 품질 검증
func (g *QualityGate) Check(ctx context.Context, date time.Time) (*Snapshot, error) {
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	snapshot := &Snapshot{
		Date:     date,
		Coverage: make(map[string]float64),
	}

	tickers, err := g.store.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tickers: %w", err)
	}
	sort.Strings(tickers)
	snapshot.TotalTickers = len(tickers)

	// 이력 기준: MinHistoryBars 거래일 ≈ 달력일 1.5배
	historyFrom := date.AddDate(0, 0, -g.config.MinHistoryBars*3/2-7)
	fundFrom := date.AddDate(0, 0, -g.config.FundamentalsMaxAge)

	var priced, volumed, funded, deep int
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars, err := g.store.Bars(ctx, ticker, historyFrom, date)
		if err != nil {
			return nil, fmt.Errorf("bars %s: %w", ticker, err)
		}
		fund, err := g.store.Fundamentals(ctx, ticker, fundFrom, date)
		if err != nil {
			return nil, fmt.Errorf("fundamentals %s: %w", ticker, err)
		}

		hasPrice, hasVolume := false, false
		for _, b := range bars {
			if b.Date.Equal(date) && b.Close > 0 {
				hasPrice = true
				hasVolume = b.Volume > 0
			}
		}
		hasHistory := len(bars) >= g.config.MinHistoryBars

		if hasPrice {
			priced++
		} else {
			snapshot.Missing = append(snapshot.Missing, ticker)
		}
		if hasVolume {
			volumed++
		}
		if len(fund) > 0 {
			funded++
		}
		if hasHistory {
			deep++
		}
		if hasPrice && hasVolume && hasHistory {
			snapshot.ValidTickers++
		}
	}

	snapshot.Coverage[CoveragePrice] = ratio(priced, len(tickers))
	snapshot.Coverage[CoverageVolume] = ratio(volumed, len(tickers))
	snapshot.Coverage[CoverageFundamentals] = ratio(funded, len(tickers))
	snapshot.Coverage[CoverageHistory] = ratio(deep, len(tickers))

	snapshot.QualityScore = g.calculateScore(snapshot.Coverage)
	snapshot.Failures = g.failures(snapshot.Coverage)
	snapshot.Passed = len(tickers) > 0 && len(snapshot.Failures) == 0
	return snapshot, nil
}

// failures lists coverage keys below their threshold, in key order
func (g *QualityGate) failures(coverage map[string]float64) []string {
	thresholds := map[string]float64{
		CoveragePrice:        g.config.MinPriceCoverage,
		CoverageVolume:       g.config.MinVolumeCoverage,
		CoverageFundamentals: g.config.MinFundamentalsCoverage,
		CoverageHistory:      g.config.MinHistoryCoverage,
	}
	var out []string
	for _, key := range []string{CoveragePrice, CoverageVolume, CoverageFundamentals, CoverageHistory} {
		if coverage[key] < thresholds[key] {
			out = append(out, key)
		}
	}
	return out
}

// calculateScore calculates overall quality score using weighted average
func (g *QualityGate) calculateScore(coverage map[string]float64) float64 {
	// 가중치 (합계 = 1.0)
	weights := map[string]float64{
		CoveragePrice:        0.35, // 가격 데이터 필수
		CoverageVolume:       0.25,
		CoverageFundamentals: 0.15, // 펀더멘털 모델만 사용
		CoverageHistory:      0.25, // 지표 계산 최소 이력
	}

	score := 0.0
	for key, weight := range weights {
		if cov, exists := coverage[key]; exists {
			score += cov * weight
		}
	}
	return score
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
