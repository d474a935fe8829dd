package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/s0_data"
	"github.com/wonny/screener/internal/s0_data/quality"
	"github.com/wonny/screener/pkg/logger"
)

// dataCmd represents the data command
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "시계열 저장소 관리",
}

var (
	dataImportCmd = &cobra.Command{
		Use:   "import",
		Short: "CSV 일봉/재무 데이터를 SQLite 저장소로 적재",
		Long: `CSV 파일을 SQLite 저장소로 적재합니다 (같은 날짜는 덮어씀).

Bars CSV header:
  ticker,date,open,high,low,close,volume

Fundamentals CSV header (빈 값 = 데이터 없음):
  ticker,date,per,pbr,psr,roe,debt_ratio,operating_margin,revenue_growth,dividend_yield

Example:
  go run ./cmd/screener data import --bars prices.csv --fundamentals fundamentals.csv`,
		RunE: runDataImport,
	}

	dataCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "저장소 데이터 커버리지 검증",
		Long: `기준일의 가격/거래량/재무/이력 커버리지를 계산하고 임계치 미달 여부를 보고합니다.

Example:
  go run ./cmd/screener data check --date 2024-03-29`,
		RunE: runDataCheck,
	}

	dataBarsFile         string
	dataFundamentalsFile string
	dataSQLitePath       string
	dataCheckDate        string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataImportCmd)
	dataCmd.AddCommand(dataCheckCmd)

	dataImportCmd.Flags().StringVar(&dataBarsFile, "bars", "", "일봉 CSV 파일")
	dataImportCmd.Flags().StringVar(&dataFundamentalsFile, "fundamentals", "", "재무 CSV 파일")
	dataImportCmd.Flags().StringVar(&dataSQLitePath, "db", "", "SQLite 경로 (기본: SQLITE_PATH)")
	dataCheckCmd.Flags().StringVar(&dataCheckDate, "date", "", "기준일 (YYYY-MM-DD, 기본: 오늘)")
}

func runDataImport(cmd *cobra.Command, args []string) error {
	if dataBarsFile == "" && dataFundamentalsFile == "" {
		return fmt.Errorf("nothing to import: set --bars and/or --fundamentals")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg).WithField("module", "data_import")

	path := cfg.Store.SQLitePath
	if dataSQLitePath != "" {
		path = dataSQLitePath
	}
	store, err := s0_data.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if dataBarsFile != "" {
		f, err := os.Open(dataBarsFile)
		if err != nil {
			return fmt.Errorf("open bars: %w", err)
		}
		bars, err := s0_data.ReadBarsCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", dataBarsFile, err)
		}

		total := 0
		for _, ticker := range sortedKeys(bars) {
			if err := store.SaveBars(ctx, ticker, bars[ticker]); err != nil {
				return err
			}
			total += len(bars[ticker])
		}
		log.WithFields(map[string]interface{}{
			"file":    dataBarsFile,
			"tickers": len(bars),
			"bars":    total,
		}).Info("Bars imported")
		fmt.Printf("✅ %d bars for %d tickers → %s\n", total, len(bars), path)
	}

	if dataFundamentalsFile != "" {
		f, err := os.Open(dataFundamentalsFile)
		if err != nil {
			return fmt.Errorf("open fundamentals: %w", err)
		}
		snaps, err := s0_data.ReadFundamentalsCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", dataFundamentalsFile, err)
		}

		total := 0
		for _, ticker := range sortedKeys(snaps) {
			if err := store.SaveFundamentals(ctx, ticker, snaps[ticker]); err != nil {
				return err
			}
			total += len(snaps[ticker])
		}
		log.WithFields(map[string]interface{}{
			"file":      dataFundamentalsFile,
			"tickers":   len(snaps),
			"snapshots": total,
		}).Info("Fundamentals imported")
		fmt.Printf("✅ %d fundamentals snapshots for %d tickers → %s\n", total, len(snaps), path)
	}
	return nil
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	date, err := parseDateFlag("date", dataCheckDate, time.Now().UTC())
	if err != nil {
		return err
	}

	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	snapshot, err := quality.NewQualityGate(d.store, quality.DefaultConfig()).Check(context.Background(), date)
	if err != nil {
		return fmt.Errorf("quality check: %w", err)
	}

	if jsonOutput {
		return PrintJSON(snapshot)
	}

	PrintHeader("Data Quality",
		fmt.Sprintf("Date      : %s", snapshot.Date.Format(dateLayout)),
		fmt.Sprintf("Tickers   : %d (%d valid)", snapshot.TotalTickers, snapshot.ValidTickers),
		fmt.Sprintf("Score     : %.4f", snapshot.QualityScore),
	)
	for _, key := range []string{quality.CoveragePrice, quality.CoverageVolume, quality.CoverageFundamentals, quality.CoverageHistory} {
		fmt.Printf("  %-14s %6.1f%%\n", key, snapshot.Coverage[key]*100)
	}
	if len(snapshot.Missing) > 0 {
		PrintWarning(fmt.Sprintf("%d tickers have no bar on %s", len(snapshot.Missing), snapshot.Date.Format(dateLayout)))
	}
	if !snapshot.Passed {
		return fmt.Errorf("quality gate failed: %v", snapshot.Failures)
	}
	fmt.Println("\n✅ Quality gate passed")
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
