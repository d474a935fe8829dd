package backtest

import "time"

// Day truncates t to a UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TradingDays returns every weekday in [start, end], oldest first
// 주말만 제외 (공휴일은 데이터 없음으로 처리)
func TradingDays(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	days := []time.Time{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}
