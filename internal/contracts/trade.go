package contracts

import "time"

// ExitReason 청산 사유
type ExitReason string

const (
	ExitHoldingPeriod ExitReason = "holding_period" // 보유기간 만료
	ExitEndOfWindow   ExitReason = "end_of_window"  // 백테스트 종료 강제청산
	ExitDataGap       ExitReason = "data_gap"       // 만기일 데이터 누락, 다음 거래일 청산
	ExitDelisted      ExitReason = "delisted"       // 데이터 소멸, 마지막 가격 청산
)

// Forced reports whether the exit was not a normal timed exit
func (r ExitReason) Forced() bool {
	return r != ExitHoldingPeriod
}

// Trade is a closed simulated position
// ⭐ SSOT: 백테스트 거래 원장
type Trade struct {
	Ticker      string     `json:"ticker"`
	EntryDate   time.Time  `json:"entry_date"`
	EntryPrice  float64    `json:"entry_price"`
	ExitDate    time.Time  `json:"exit_date"`
	ExitPrice   float64    `json:"exit_price"`
	Shares      float64    `json:"shares"`
	ReturnPct   float64    `json:"return_pct"`
	PnL         float64    `json:"pnl"`
	HoldingDays int        `json:"holding_days"` // 거래일 기준
	ExitReason  ExitReason `json:"exit_reason"`
	EntryScore  float64    `json:"entry_score"`
	Commission  float64    `json:"commission"`
}

// IsWin returns true when the trade made money
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// EquityPoint is the portfolio mark for one trading day
type EquityPoint struct {
	Date          time.Time `json:"date"`
	EquityValue   float64   `json:"equity_value"`
	Cash          float64   `json:"cash"`
	OpenPositions int       `json:"open_positions"`
}
