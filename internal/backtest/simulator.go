package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/screener/internal/contracts"
)

// Simulator is the cash and position ledger of one backtest run
// ⭐ SSOT: 백테스트 체결/원장 계산은 여기서만
type Simulator struct {
	cash           float64
	commissionRate float64
	slippageRate   float64

	positions map[string]*Position
	trades    []contracts.Trade
}

// Position represents an open holding
type Position struct {
	Ticker     string
	Shares     float64
	EntryDate  time.Time
	EntryIndex int     // 진입 거래일 인덱스 (보유일 계산용)
	EntryPrice float64 // 슬리피지 반영 체결가
	CostBasis  float64 // 수수료 포함 총 매입금액
	Commission float64
	EntryScore float64
	LastPrice  float64 // 평가용 마지막 종가 (carry-forward)
	Deferred   bool    // 만기일 데이터 누락으로 청산 연기됨
}

// NewSimulator creates a ledger with initial capital
func NewSimulator(capital, commissionRate, slippageRate float64) *Simulator {
	return &Simulator{
		cash:           capital,
		commissionRate: commissionRate,
		slippageRate:   slippageRate,
		positions:      make(map[string]*Position),
		trades:         []contracts.Trade{},
	}
}

// Cash returns uninvested cash
func (s *Simulator) Cash() float64 {
	return s.cash
}

// OpenCount returns the number of open positions
func (s *Simulator) OpenCount() int {
	return len(s.positions)
}

// Holds reports whether ticker has an open position
func (s *Simulator) Holds(ticker string) bool {
	_, ok := s.positions[ticker]
	return ok
}

// Position returns the open position for ticker
func (s *Simulator) Position(ticker string) (*Position, bool) {
	p, ok := s.positions[ticker]
	return p, ok
}

// OpenTickers returns open position tickers in ascending order
func (s *Simulator) OpenTickers() []string {
	out := make([]string, 0, len(s.positions))
	for t := range s.positions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Trades returns closed trades in exit order
func (s *Simulator) Trades() []contracts.Trade {
	return s.trades
}

// Buy opens a position spending at most amount (commission included)
func (s *Simulator) Buy(ticker string, date time.Time, dayIndex int, price, amount, score float64) error {
	if s.Holds(ticker) {
		return fmt.Errorf("position already open: %s", ticker)
	}
	if price <= 0 {
		return fmt.Errorf("invalid price for %s: %v", ticker, price)
	}
	if amount <= 0 || amount > s.cash+1e-9 {
		return fmt.Errorf("insufficient cash: need %.2f, have %.2f", amount, s.cash)
	}

	fill := price * (1.0 + s.slippageRate)
	shares := amount / (fill * (1.0 + s.commissionRate))
	commission := shares * fill * s.commissionRate
	cost := shares*fill + commission

	s.cash -= cost
	if s.cash < 0 {
		// 부동소수 오차
		s.cash = 0
	}
	s.positions[ticker] = &Position{
		Ticker:     ticker,
		Shares:     shares,
		EntryDate:  date,
		EntryIndex: dayIndex,
		EntryPrice: fill,
		CostBasis:  cost,
		Commission: commission,
		EntryScore: score,
		LastPrice:  price,
	}
	return nil
}

// Sell closes the position for ticker and appends a trade
func (s *Simulator) Sell(ticker string, date time.Time, dayIndex int, price float64, reason contracts.ExitReason) (contracts.Trade, error) {
	pos, ok := s.positions[ticker]
	if !ok {
		return contracts.Trade{}, fmt.Errorf("no position to sell: %s", ticker)
	}
	if !date.After(pos.EntryDate) {
		return contracts.Trade{}, fmt.Errorf("exit %s not after entry %s for %s",
			date.Format("2006-01-02"), pos.EntryDate.Format("2006-01-02"), ticker)
	}

	fill := price * (1.0 - s.slippageRate)
	commission := pos.Shares * fill * s.commissionRate
	proceeds := pos.Shares*fill - commission
	pnl := proceeds - pos.CostBasis

	returnPct := 0.0
	if pos.CostBasis > 0 {
		returnPct = pnl / pos.CostBasis * 100
	}

	trade := contracts.Trade{
		Ticker:      ticker,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    date,
		ExitPrice:   fill,
		Shares:      pos.Shares,
		ReturnPct:   returnPct,
		PnL:         pnl,
		HoldingDays: dayIndex - pos.EntryIndex,
		ExitReason:  reason,
		EntryScore:  pos.EntryScore,
		Commission:  pos.Commission + commission,
	}

	s.cash += proceeds
	delete(s.positions, ticker)
	s.trades = append(s.trades, trade)
	return trade, nil
}

// Mark updates the carry-forward price of an open position
func (s *Simulator) Mark(ticker string, price float64) {
	if pos, ok := s.positions[ticker]; ok && price > 0 {
		pos.LastPrice = price
	}
}

// Equity returns cash plus open positions at their last known prices
func (s *Simulator) Equity() float64 {
	value := s.cash
	for _, pos := range s.positions {
		value += pos.Shares * pos.LastPrice
	}
	return value
}
