package contracts

import (
	"fmt"
	"math"
	"time"
)

// SignalType is a model's directional opinion
type SignalType string

const (
	SignalBuy     SignalType = "buy"
	SignalSell    SignalType = "sell"
	SignalNeutral SignalType = "neutral"
)

// Valid reports whether t is a known signal type
func (t SignalType) Valid() bool {
	switch t {
	case SignalBuy, SignalSell, SignalNeutral:
		return true
	}
	return false
}

// Signal is one model's opinion on one ticker as of a date
// ⭐ SSOT: 모델 → Aggregator/Backtest 시그널 전달
type Signal struct {
	ModelID       string     `json:"model_id"`
	Ticker        string     `json:"ticker"`
	Type          SignalType `json:"signal_type"`
	Score         float64    `json:"score"` // 0 ~ 100 강도
	PriceAtSignal float64    `json:"price_at_signal"`
	AsOf          time.Time  `json:"as_of_date"`
}

// IsBuy returns true for buy signals
func (s *Signal) IsBuy() bool {
	return s != nil && s.Type == SignalBuy
}

// IsSell returns true for sell signals
func (s *Signal) IsSell() bool {
	return s != nil && s.Type == SignalSell
}

// Check rejects malformed model output for ticker and fills an empty Ticker.
// A nil signal ("no opinion") is valid.
func (s *Signal) Check(ticker string) error {
	if s == nil {
		return nil
	}
	if !s.Type.Valid() {
		return fmt.Errorf("invalid signal type %q", s.Type)
	}
	if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
		return fmt.Errorf("invalid score %v", s.Score)
	}
	if s.Ticker != "" && s.Ticker != ticker {
		return fmt.Errorf("signal for %q returned while evaluating %q", s.Ticker, ticker)
	}
	s.Ticker = ticker
	return nil
}
