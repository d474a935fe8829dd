package s0_data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/wonny/screener/internal/contracts"
)

const sqliteDateLayout = "2006-01-02"

var _ contracts.TimeSeriesStore = (*SQLiteStore)(nil)

// SQLiteStore serves offline research datasets from a SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and runs migrations
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL: 백테스트 병렬 읽기
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stocks (
			code   TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'active'
		)`,
		`CREATE TABLE IF NOT EXISTS daily_prices (
			stock_code  TEXT NOT NULL,
			trade_date  TEXT NOT NULL,
			open_price  REAL,
			high_price  REAL,
			low_price   REAL,
			close_price REAL NOT NULL,
			volume      INTEGER,
			PRIMARY KEY (stock_code, trade_date)
		)`,
		`CREATE TABLE IF NOT EXISTS fundamentals (
			stock_code       TEXT NOT NULL,
			report_date      TEXT NOT NULL,
			per              REAL,
			pbr              REAL,
			psr              REAL,
			roe              REAL,
			debt_ratio       REAL,
			operating_margin REAL,
			revenue_growth   REAL,
			dividend_yield   REAL,
			PRIMARY KEY (stock_code, report_date)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// SaveBars upserts bars for a ticker and registers it as active
func (s *SQLiteStore) SaveBars(ctx context.Context, ticker string, bars []contracts.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO stocks (code) VALUES (?)`, ticker); err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}

	for _, b := range bars {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO daily_prices
				(stock_code, trade_date, open_price, high_price, low_price, close_price, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ticker, b.Date.Format(sqliteDateLayout), b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("insert bar %s %s: %w", ticker, b.Date.Format(sqliteDateLayout), err)
		}
	}
	return tx.Commit()
}

// SaveFundamentals upserts fundamentals snapshots for a ticker
func (s *SQLiteStore) SaveFundamentals(ctx context.Context, ticker string, snaps []contracts.Fundamentals) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, f := range snaps {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO fundamentals
				(stock_code, report_date, per, pbr, psr, roe, debt_ratio,
				 operating_margin, revenue_growth, dividend_yield)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ticker, f.Date.Format(sqliteDateLayout), f.PER, f.PBR, f.PSR, f.ROE, f.DebtRatio,
			f.OperatingMargin, f.RevenueGrowth, f.DividendYield,
		)
		if err != nil {
			return fmt.Errorf("insert fundamentals %s: %w", ticker, err)
		}
	}
	return tx.Commit()
}

// Bars retrieves daily bars for a ticker within [from, to]
func (s *SQLiteStore) Bars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_date, COALESCE(open_price, 0), COALESCE(high_price, 0),
		       COALESCE(low_price, 0), close_price, COALESCE(volume, 0)
		FROM daily_prices
		WHERE stock_code = ? AND trade_date BETWEEN ? AND ?
		ORDER BY trade_date ASC`,
		ticker, from.Format(sqliteDateLayout), to.Format(sqliteDateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", ticker, err)
	}
	defer rows.Close()

	bars := []contracts.Bar{}
	for rows.Next() {
		var (
			b    contracts.Bar
			date string
		)
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if b.Date, err = time.Parse(sqliteDateLayout, date); err != nil {
			return nil, fmt.Errorf("parse bar date %q: %w", date, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Fundamentals retrieves snapshots reported within [from, to]
func (s *SQLiteStore) Fundamentals(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Fundamentals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_date, per, pbr, psr, roe, debt_ratio,
		       operating_margin, revenue_growth, dividend_yield
		FROM fundamentals
		WHERE stock_code = ? AND report_date BETWEEN ? AND ?
		ORDER BY report_date ASC`,
		ticker, from.Format(sqliteDateLayout), to.Format(sqliteDateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query fundamentals %s: %w", ticker, err)
	}
	defer rows.Close()

	out := []contracts.Fundamentals{}
	for rows.Next() {
		var (
			f    contracts.Fundamentals
			date string
			cols [8]sql.NullFloat64
		)
		if err := rows.Scan(&date, &cols[0], &cols[1], &cols[2], &cols[3],
			&cols[4], &cols[5], &cols[6], &cols[7]); err != nil {
			return nil, fmt.Errorf("scan fundamentals: %w", err)
		}
		if f.Date, err = time.Parse(sqliteDateLayout, date); err != nil {
			return nil, fmt.Errorf("parse report date %q: %w", date, err)
		}
		targets := []**float64{
			&f.PER, &f.PBR, &f.PSR, &f.ROE, &f.DebtRatio,
			&f.OperatingMargin, &f.RevenueGrowth, &f.DividendYield,
		}
		for i, c := range cols {
			if c.Valid {
				*targets[i] = contracts.Float(c.Float64)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Tickers lists active stock codes
func (s *SQLiteStore) Tickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM stocks WHERE status = 'active' ORDER BY code`)
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
