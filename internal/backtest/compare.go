package backtest

import "sort"

// Ranking is one row of a model comparison
type Ranking struct {
	Rank           int     `json:"rank"`
	ModelID        string  `json:"model_id"`
	RunID          string  `json:"run_id"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	WinRatePct     float64 `json:"win_rate_pct"`
	TotalTrades    int     `json:"total_trades"`
}

// Rank orders results by Sharpe desc, total return desc, model id asc
func Rank(results []*Result) []Ranking {
	rows := make([]Ranking, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		rows = append(rows, Ranking{
			ModelID:        r.ModelID,
			RunID:          r.RunID,
			SharpeRatio:    r.Report.SharpeRatio,
			TotalReturnPct: r.Report.TotalReturnPct,
			MaxDrawdownPct: r.Report.MaxDrawdownPct,
			WinRatePct:     r.Report.TradeStats.WinRatePct,
			TotalTrades:    r.Report.TradeStats.TotalTrades,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SharpeRatio != rows[j].SharpeRatio {
			return rows[i].SharpeRatio > rows[j].SharpeRatio
		}
		if rows[i].TotalReturnPct != rows[j].TotalReturnPct {
			return rows[i].TotalReturnPct > rows[j].TotalReturnPct
		}
		return rows[i].ModelID < rows[j].ModelID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
