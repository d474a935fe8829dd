package contracts

// PerformanceReport summarizes one backtest run
// ⭐ SSOT: 성과 지표 출력 포맷
type PerformanceReport struct {
	InitialCapital      float64    `json:"initial_capital"`
	FinalValue          float64    `json:"final_value"`
	TotalReturnPct      float64    `json:"total_return_pct"`
	AnnualizedReturnPct float64    `json:"annualized_return_pct"`
	MaxDrawdownPct      float64    `json:"max_drawdown_pct"` // 음수 (%)
	SharpeRatio         float64    `json:"sharpe_ratio"`
	SortinoRatio        float64    `json:"sortino_ratio"`
	VolatilityPct       float64    `json:"volatility_pct"` // 연율화
	TradeStats          TradeStats `json:"trade_stats"`
}

// TradeStats holds per-trade statistics
type TradeStats struct {
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`
	AvgWinPct      float64 `json:"avg_win_pct"`
	AvgLossPct     float64 `json:"avg_loss_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
	ForcedExits    int     `json:"forced_exits"`
}
