package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/screener/internal/contracts"
)

var _ contracts.TimeSeriesStore = (*PostgresStore)(nil)

// PostgresStore reads bars and fundamentals from the data schema
// ⭐ SSOT: Postgres 시계열 조회는 여기서만
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Bars retrieves daily bars for a ticker within [from, to]
func (s *PostgresStore) Bars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE stock_code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", ticker, err)
	}
	defer rows.Close()

	bars := []contracts.Bar{}
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Fundamentals retrieves snapshots reported within [from, to]
// NULL 컬럼은 nil 유지 (누락 필드 구분)
func (s *PostgresStore) Fundamentals(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Fundamentals, error) {
	query := `
		SELECT report_date, per, pbr, psr, roe, debt_ratio,
		       operating_margin, revenue_growth, dividend_yield
		FROM data.fundamentals
		WHERE stock_code = $1 AND report_date BETWEEN $2 AND $3
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("query fundamentals %s: %w", ticker, err)
	}
	defer rows.Close()

	out := []contracts.Fundamentals{}
	for rows.Next() {
		var f contracts.Fundamentals
		if err := rows.Scan(
			&f.Date, &f.PER, &f.PBR, &f.PSR, &f.ROE, &f.DebtRatio,
			&f.OperatingMargin, &f.RevenueGrowth, &f.DividendYield,
		); err != nil {
			return nil, fmt.Errorf("scan fundamentals: %w", err)
		}
		f.Date = f.Date.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

// Tickers lists active stock codes
func (s *PostgresStore) Tickers(ctx context.Context) ([]string, error) {
	query := `SELECT code FROM data.stocks WHERE status = 'active' ORDER BY code`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tickers: %w", err)
	}
	defer rows.Close()

	tickers := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		tickers = append(tickers, code)
	}
	return tickers, rows.Err()
}
