package contracts

import (
	"context"
	"time"
)

// Category groups scoring models
type Category string

const (
	CategoryTechnical   Category = "technical"
	CategoryFundamental Category = "fundamental"
)

// ScoringModel evaluates one ticker as of a date
// ⭐ SSOT: 모든 모델은 이 인터페이스 하나로 호출
type ScoringModel interface {
	ID() string
	Category() Category
	// RequiredFields lists fundamental fields the model cannot score without
	RequiredFields() []string
	// Evaluate returns nil, nil when history is insufficient
	Evaluate(ctx context.Context, ticker string, asOf time.Time, history *History) (*Signal, error)
}

// TimeSeriesStore supplies bars and fundamentals (read-only)
// 데이터 없음 = 빈 슬라이스, 에러 아님
type TimeSeriesStore interface {
	Bars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
	Fundamentals(ctx context.Context, ticker string, from, to time.Time) ([]Fundamentals, error)
	Tickers(ctx context.Context) ([]string, error)
}

// LoadHistory fetches bars and fundamentals for a window into a History
func LoadHistory(ctx context.Context, store TimeSeriesStore, ticker string, from, to time.Time) (*History, error) {
	bars, err := store.Bars(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	fundamentals, err := store.Fundamentals(ctx, ticker, time.Time{}, to)
	if err != nil {
		return nil, err
	}
	return NewHistory(ticker, bars, fundamentals), nil
}
