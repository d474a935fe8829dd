package contracts

import "time"

// Classification buckets a consensus entry
type Classification string

const (
	StrongBuy    Classification = "strong_buy"
	ModerateBuy  Classification = "moderate_buy"
	StrongSell   Classification = "strong_sell"
	ModerateSell Classification = "moderate_sell"
)

// ConsensusEntry is the agreement of several models on one ticker and direction
type ConsensusEntry struct {
	Ticker             string         `json:"ticker"`
	Confirmations      int            `json:"confirmations"`
	AverageScore       float64        `json:"average_score"`
	ContributingModels []string       `json:"contributing_models"` // 모델 선택 순서
	Classification     Classification `json:"classification"`
}

// ConsensusResult is the bucketed output of one aggregation run
// ⭐ SSOT: Aggregator 출력 포맷
type ConsensusResult struct {
	AsOf         time.Time        `json:"as_of"`
	StrongBuy    []ConsensusEntry `json:"strong_buy"`
	ModerateBuy  []ConsensusEntry `json:"moderate_buy"`
	StrongSell   []ConsensusEntry `json:"strong_sell"`
	ModerateSell []ConsensusEntry `json:"moderate_sell"`

	TotalModelsAnalyzed int      `json:"total_models_analyzed"`
	SkippedModels       []string `json:"skipped_models"`
	CoverageRatio       float64  `json:"coverage_ratio"` // 성공 평가 / (종목 × 모델)
	Evaluations         int      `json:"evaluations"`
	Failures            int      `json:"failures"`
}

// Find returns the entry for ticker in the given bucket
func (r *ConsensusResult) Find(c Classification, ticker string) (*ConsensusEntry, bool) {
	for i := range r.bucket(c) {
		e := &r.bucket(c)[i]
		if e.Ticker == ticker {
			return e, true
		}
	}
	return nil, false
}

// Count returns the number of entries across all buckets
func (r *ConsensusResult) Count() int {
	return len(r.StrongBuy) + len(r.ModerateBuy) + len(r.StrongSell) + len(r.ModerateSell)
}

func (r *ConsensusResult) bucket(c Classification) []ConsensusEntry {
	switch c {
	case StrongBuy:
		return r.StrongBuy
	case ModerateBuy:
		return r.ModerateBuy
	case StrongSell:
		return r.StrongSell
	case ModerateSell:
		return r.ModerateSell
	}
	return nil
}
