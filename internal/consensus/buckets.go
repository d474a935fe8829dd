package consensus

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/screener/internal/contracts"
)

// reduce turns raw evaluations into the bucketed result
func (a *Aggregator) reduce(
	tickers []string,
	selected []contracts.ScoringModel,
	results map[string][]evaluation,
	minConfirmation int,
	asOf time.Time,
) *contracts.ConsensusResult {
	signalCount := make([]int, len(selected))
	evaluations, failures := 0, 0
	for _, evals := range results {
		for _, e := range evals {
			switch {
			case e.err != nil:
				failures++
			case e.signal != nil:
				signalCount[e.model]++
				evaluations++
			}
		}
	}

	// 전체 유니버스에서 신호가 하나도 없는 모델만 제외
	// 차단기가 열린 모델도 열리기 전 신호는 유지
	skipped := make([]bool, len(selected))
	skippedIDs := []string{}
	for i, m := range selected {
		if signalCount[i] == 0 {
			skipped[i] = true
			skippedIDs = append(skippedIDs, m.ID())
			a.metrics.RecordModelSkipped(m.ID())
			a.logger.WithFields(map[string]interface{}{
				"model":   m.ID(),
				"signals": signalCount[i],
			}).Warn("Model skipped for this run")
		}
	}
	analyzed := len(selected) - len(skippedIDs)

	result := &contracts.ConsensusResult{
		AsOf:                asOf,
		StrongBuy:           []contracts.ConsensusEntry{},
		ModerateBuy:         []contracts.ConsensusEntry{},
		StrongSell:          []contracts.ConsensusEntry{},
		ModerateSell:        []contracts.ConsensusEntry{},
		TotalModelsAnalyzed: analyzed,
		SkippedModels:       skippedIDs,
		CoverageRatio:       coverage(evaluations, len(tickers), len(selected)),
		Evaluations:         evaluations,
		Failures:            failures,
	}
	if analyzed == 0 {
		return result
	}

	strong := StrongThreshold(a.cfg.StrongRatio, analyzed, minConfirmation)

	for _, ticker := range tickers {
		evals := results[ticker]
		// 모델 선택 순서대로 정렬
		sort.Slice(evals, func(i, j int) bool { return evals[i].model < evals[j].model })

		buy := &vote{}
		sell := &vote{}
		for _, e := range evals {
			if e.err != nil || e.signal == nil || skipped[e.model] {
				continue
			}
			// neutral은 어느 쪽에도 세지 않음
			switch e.signal.Type {
			case contracts.SignalBuy:
				buy.add(selected[e.model].ID(), e.signal.Score)
			case contracts.SignalSell:
				sell.add(selected[e.model].ID(), e.signal.Score)
			}
		}

		// 매수/매도 합의는 독립 계산, 상쇄하지 않음
		if entry, ok := buy.entry(ticker, minConfirmation, strong, contracts.StrongBuy, contracts.ModerateBuy); ok {
			if entry.Classification == contracts.StrongBuy {
				result.StrongBuy = append(result.StrongBuy, entry)
			} else {
				result.ModerateBuy = append(result.ModerateBuy, entry)
			}
		}
		if entry, ok := sell.entry(ticker, minConfirmation, strong, contracts.StrongSell, contracts.ModerateSell); ok {
			if entry.Classification == contracts.StrongSell {
				result.StrongSell = append(result.StrongSell, entry)
			} else {
				result.ModerateSell = append(result.ModerateSell, entry)
			}
		}
	}

	sortEntries(result.StrongBuy)
	sortEntries(result.ModerateBuy)
	sortEntries(result.StrongSell)
	sortEntries(result.ModerateSell)
	return result
}

// StrongThreshold returns the confirmations needed for a strong classification
// ceil(ratio × analyzed), min_confirmation 이상
func StrongThreshold(ratio float64, analyzed, minConfirmation int) int {
	// 0.6 × 5 = 3.0000000000000004 방지
	n := int(math.Ceil(ratio*float64(analyzed) - 1e-9))
	if n < minConfirmation {
		n = minConfirmation
	}
	if n < 1 {
		n = 1
	}
	return n
}

type vote struct {
	models []string
	sum    float64
}

func (v *vote) add(modelID string, score float64) {
	v.models = append(v.models, modelID)
	v.sum += score
}

func (v *vote) entry(ticker string, minConfirmation, strong int, strongClass, moderateClass contracts.Classification) (contracts.ConsensusEntry, bool) {
	n := len(v.models)
	if n == 0 || n < minConfirmation {
		return contracts.ConsensusEntry{}, false
	}

	class := moderateClass
	if n >= strong {
		class = strongClass
	}
	return contracts.ConsensusEntry{
		Ticker:             ticker,
		Confirmations:      n,
		AverageScore:       v.sum / float64(n),
		ContributingModels: v.models,
		Classification:     class,
	}, true
}

// sortEntries orders by confirmations desc, average_score desc, ticker asc
func sortEntries(entries []contracts.ConsensusEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Confirmations != entries[j].Confirmations {
			return entries[i].Confirmations > entries[j].Confirmations
		}
		if entries[i].AverageScore != entries[j].AverageScore {
			return entries[i].AverageScore > entries[j].AverageScore
		}
		return entries[i].Ticker < entries[j].Ticker
	})
}

func coverage(evaluations, tickers, models int) float64 {
	pairs := tickers * models
	if pairs == 0 {
		return 0
	}
	return float64(evaluations) / float64(pairs)
}
