package contracts

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV record
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Fundamental field names used by RequiredFields
const (
	FieldPER             = "per"
	FieldPBR             = "pbr"
	FieldPSR             = "psr"
	FieldROE             = "roe"
	FieldDebtRatio       = "debt_ratio"
	FieldOperatingMargin = "operating_margin"
	FieldRevenueGrowth   = "revenue_growth"
	FieldDividendYield   = "dividend_yield"
)

// Fundamentals is a point-in-time snapshot of trailing ratios
// nil 필드 = 데이터 없음
type Fundamentals struct {
	Date            time.Time `json:"date"` // 공시 기준일
	PER             *float64  `json:"per,omitempty"`
	PBR             *float64  `json:"pbr,omitempty"`
	PSR             *float64  `json:"psr,omitempty"`
	ROE             *float64  `json:"roe,omitempty"`        // %
	DebtRatio       *float64  `json:"debt_ratio,omitempty"` // %
	OperatingMargin *float64  `json:"operating_margin,omitempty"`
	RevenueGrowth   *float64  `json:"revenue_growth,omitempty"`
	DividendYield   *float64  `json:"dividend_yield,omitempty"`
}

// Value returns the named field and whether it is present
func (f *Fundamentals) Value(field string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	var p *float64
	switch field {
	case FieldPER:
		p = f.PER
	case FieldPBR:
		p = f.PBR
	case FieldPSR:
		p = f.PSR
	case FieldROE:
		p = f.ROE
	case FieldDebtRatio:
		p = f.DebtRatio
	case FieldOperatingMargin:
		p = f.OperatingMargin
	case FieldRevenueGrowth:
		p = f.RevenueGrowth
	case FieldDividendYield:
		p = f.DividendYield
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Has reports whether every listed field is present
func (f *Fundamentals) Has(fields ...string) bool {
	for _, field := range fields {
		if _, ok := f.Value(field); !ok {
			return false
		}
	}
	return true
}

// Float returns a pointer to v (fixtures, store scans)
func Float(v float64) *float64 {
	return &v
}

// History is a ticker's data, sorted ascending by date
type History struct {
	Ticker       string         `json:"ticker"`
	Bars         []Bar          `json:"bars"`
	Fundamentals []Fundamentals `json:"fundamentals"`
}

// NewHistory sorts inputs by date and builds a History
func NewHistory(ticker string, bars []Bar, fundamentals []Fundamentals) *History {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	sort.SliceStable(fundamentals, func(i, j int) bool {
		return fundamentals[i].Date.Before(fundamentals[j].Date)
	})
	return &History{Ticker: ticker, Bars: bars, Fundamentals: fundamentals}
}

// Until returns a view with no data dated after asOf
// 룩어헤드 방지: 모델은 항상 이 뷰만 받음
func (h *History) Until(asOf time.Time) *History {
	nb := sort.Search(len(h.Bars), func(i int) bool { return h.Bars[i].Date.After(asOf) })
	nf := sort.Search(len(h.Fundamentals), func(i int) bool { return h.Fundamentals[i].Date.After(asOf) })
	return &History{
		Ticker:       h.Ticker,
		Bars:         h.Bars[:nb:nb],
		Fundamentals: h.Fundamentals[:nf:nf],
	}
}

// Len returns the number of bars
func (h *History) Len() int {
	return len(h.Bars)
}

// Last returns the latest bar
func (h *History) Last() (Bar, bool) {
	if len(h.Bars) == 0 {
		return Bar{}, false
	}
	return h.Bars[len(h.Bars)-1], true
}

// BarOn returns the bar dated exactly d
func (h *History) BarOn(d time.Time) (Bar, bool) {
	i := sort.Search(len(h.Bars), func(i int) bool { return !h.Bars[i].Date.Before(d) })
	if i < len(h.Bars) && h.Bars[i].Date.Equal(d) {
		return h.Bars[i], true
	}
	return Bar{}, false
}

// HasBarFrom reports whether any bar is dated on or after d
func (h *History) HasBarFrom(d time.Time) bool {
	return len(h.Bars) > 0 && !h.Bars[len(h.Bars)-1].Date.Before(d)
}

// LatestFundamentals returns the most recent snapshot
func (h *History) LatestFundamentals() *Fundamentals {
	if len(h.Fundamentals) == 0 {
		return nil
	}
	return &h.Fundamentals[len(h.Fundamentals)-1]
}

// Closes returns close prices oldest first
func (h *History) Closes() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns volumes oldest first
func (h *History) Volumes() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = float64(b.Volume)
	}
	return out
}
