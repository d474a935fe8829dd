package s0_data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/screener/internal/contracts"
)

// BarColumns is the header expected by ReadBarsCSV
var BarColumns = []string{"ticker", "date", "open", "high", "low", "close", "volume"}

// ReadBarsCSV parses "ticker,date,open,high,low,close,volume" rows grouped by ticker
// 헤더 필수, 컬럼 순서는 자유
func ReadBarsCSV(r io.Reader) (map[string][]contracts.Bar, error) {
	out := make(map[string][]contracts.Bar)
	err := readCSV(r, BarColumns, func(line int, get func(string) string) error {
		date, err := time.Parse(sqliteDateLayout, get("date"))
		if err != nil {
			return fmt.Errorf("line %d: date: %w", line, err)
		}
		var bar contracts.Bar
		bar.Date = date
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
		} {
			v, err := strconv.ParseFloat(get(f.col), 64)
			if err != nil {
				return fmt.Errorf("line %d: %s: %w", line, f.col, err)
			}
			*f.dst = v
		}
		if bar.Close <= 0 {
			return fmt.Errorf("line %d: close must be positive", line)
		}
		vol, err := strconv.ParseInt(get("volume"), 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: volume: %w", line, err)
		}
		bar.Volume = vol

		ticker := get("ticker")
		out[ticker] = append(out[ticker], bar)
		return nil
	})
	return out, err
}

// FundamentalColumns is the header expected by ReadFundamentalsCSV
// ticker, date 외 비어있는 값은 nil
var FundamentalColumns = []string{
	"ticker", "date",
	contracts.FieldPER, contracts.FieldPBR, contracts.FieldPSR, contracts.FieldROE,
	contracts.FieldDebtRatio, contracts.FieldOperatingMargin, contracts.FieldRevenueGrowth, contracts.FieldDividendYield,
}

// ReadFundamentalsCSV parses fundamentals snapshots grouped by ticker
func ReadFundamentalsCSV(r io.Reader) (map[string][]contracts.Fundamentals, error) {
	out := make(map[string][]contracts.Fundamentals)
	err := readCSV(r, []string{"ticker", "date"}, func(line int, get func(string) string) error {
		date, err := time.Parse(sqliteDateLayout, get("date"))
		if err != nil {
			return fmt.Errorf("line %d: date: %w", line, err)
		}
		f := contracts.Fundamentals{Date: date}
		for _, c := range []struct {
			col string
			dst **float64
		}{
			{contracts.FieldPER, &f.PER},
			{contracts.FieldPBR, &f.PBR},
			{contracts.FieldPSR, &f.PSR},
			{contracts.FieldROE, &f.ROE},
			{contracts.FieldDebtRatio, &f.DebtRatio},
			{contracts.FieldOperatingMargin, &f.OperatingMargin},
			{contracts.FieldRevenueGrowth, &f.RevenueGrowth},
			{contracts.FieldDividendYield, &f.DividendYield},
		} {
			raw := get(c.col)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("line %d: %s: %w", line, c.col, err)
			}
			*c.dst = contracts.Float(v)
		}

		ticker := get("ticker")
		out[ticker] = append(out[ticker], f)
		return nil
	})
	return out, err
}

// readCSV reads a headed CSV and calls fn for each data row
func readCSV(r io.Reader, required []string, fn func(line int, get func(string) string) error) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("empty csv")
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("missing column %q", col)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if get("ticker") == "" {
			return fmt.Errorf("line %d: ticker is required", line)
		}
		if err := fn(line, get); err != nil {
			return err
		}
	}
}
