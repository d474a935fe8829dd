package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/backtest"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "단일 모델 백테스트",
	Long: `과거 구간에서 모델 시그널을 재생하여 고정 보유기간 정책으로 매매를 시뮬레이션합니다.

매일:
  1. 해당일 종가가 있는 종목에 모델 실행 (당일까지의 데이터만 사용)
  2. 매수 시그널 상위 top-n 진입 (빈 슬롯에 동일 비중)
  3. 보유기간(거래일) 만기 청산
  4. 마지막 거래일 강제청산
  5. 자산 평가

Example:
  go run ./cmd/screener backtest run --model momentum --from 2023-01-02 --to 2023-12-29
  go run ./cmd/screener backtest compare --from 2023-01-02 --to 2023-12-29 --holding 10`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		RunE:  runBacktest,
	}

	backtestCompareCmd = &cobra.Command{
		Use:   "compare",
		Short: "여러 모델 백테스트 후 Sharpe 순위 비교",
		RunE:  runBacktestCompare,
	}

	// Flags
	backtestModel      string
	backtestModels     string
	backtestTickers    string
	backtestFrom       string
	backtestTo         string
	backtestCapital    float64
	backtestHolding    int
	backtestTopN       int
	backtestCommission float64
	backtestSlippage   float64
	backtestWorkers    int
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestCompareCmd)

	for _, c := range []*cobra.Command{backtestRunCmd, backtestCompareCmd} {
		c.Flags().StringVar(&backtestTickers, "tickers", "", "종목 코드 (쉼표 구분, 기본: 저장소 전체)")
		c.Flags().StringVar(&backtestFrom, "from", "", "시작 날짜 (YYYY-MM-DD, 필수)")
		c.Flags().StringVar(&backtestTo, "to", "", "종료 날짜 (YYYY-MM-DD, 기본: 오늘)")
		c.Flags().Float64Var(&backtestCapital, "capital", 100_000_000, "초기 자본 (원)")
		c.Flags().IntVar(&backtestHolding, "holding", 20, "보유기간 (거래일)")
		c.Flags().IntVar(&backtestTopN, "top-n", 10, "최대 동시 보유 종목 수")
		c.Flags().Float64Var(&backtestCommission, "commission", 0, "수수료율 (e.g., 0.00015)")
		c.Flags().Float64Var(&backtestSlippage, "slippage", 0, "슬리피지율 (e.g., 0.001)")
		c.MarkFlagRequired("from")
	}

	backtestRunCmd.Flags().StringVar(&backtestModel, "model", "", "모델 ID (필수)")
	backtestRunCmd.MarkFlagRequired("model")

	backtestCompareCmd.Flags().StringVar(&backtestModels, "models", "", "비교할 모델 ID (쉼표 구분, 기본: 전체)")
	backtestCompareCmd.Flags().IntVar(&backtestWorkers, "workers", 4, "동시 실행 백테스트 수")
}

// backtestConfig builds the engine config from flags
func backtestConfig(ctx context.Context, d *deps) (backtest.Config, error) {
	start, err := parseDateFlag("from", backtestFrom, time.Time{})
	if err != nil {
		return backtest.Config{}, err
	}
	end, err := parseDateFlag("to", backtestTo, time.Now().UTC())
	if err != nil {
		return backtest.Config{}, err
	}

	tickers := splitList(backtestTickers)
	if len(tickers) == 0 {
		tickers, err = d.store.Tickers(ctx)
		if err != nil {
			return backtest.Config{}, fmt.Errorf("load universe: %w", err)
		}
	}

	return backtest.Config{
		Tickers:           tickers,
		StartDate:         start,
		EndDate:           end,
		InitialCapital:    backtestCapital,
		HoldingPeriodDays: backtestHolding,
		TopN:              backtestTopN,
		CommissionRate:    backtestCommission,
		SlippageRate:      backtestSlippage,
	}, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, ok := d.registry.Get(backtestModel)
	if !ok {
		return fmt.Errorf("unknown model %q", backtestModel)
	}
	cfg, err := backtestConfig(ctx, d)
	if err != nil {
		return err
	}

	result, err := d.engine.Run(ctx, model, cfg)
	if err != nil {
		return err
	}

	if jsonOutput {
		return PrintJSON(result)
	}
	printBacktest(result, cfg)
	return nil
}

func runBacktestCompare(cmd *cobra.Command, args []string) error {
	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	selected, err := d.registry.Select(splitList(backtestModels), "")
	if err != nil {
		return err
	}
	cfg, err := backtestConfig(ctx, d)
	if err != nil {
		return err
	}

	results, err := d.engine.RunMany(ctx, selected, cfg, backtestWorkers)
	if err != nil {
		return err
	}
	rankings := backtest.Rank(results)

	if jsonOutput {
		return PrintJSON(rankings)
	}

	PrintHeader("Backtest Comparison",
		fmt.Sprintf("Period    : %s ~ %s", cfg.StartDate.Format(dateLayout), cfg.EndDate.Format(dateLayout)),
		fmt.Sprintf("Holding   : %d trading days, top %d", cfg.HoldingPeriodDays, cfg.TopN),
	)
	fmt.Printf("  %-4s %-18s %8s %10s %10s %8s %7s\n", "#", "Model", "Sharpe", "Return", "MaxDD", "WinRate", "Trades")
	PrintSeparator()
	for _, r := range rankings {
		fmt.Printf("  %-4d %-18s %8.2f %10s %10s %7.1f%% %7d\n",
			r.Rank, r.ModelID, r.SharpeRatio, formatPct(r.TotalReturnPct), formatPct(r.MaxDrawdownPct), r.WinRatePct, r.TotalTrades)
	}
	return nil
}

func printBacktest(r *backtest.Result, cfg backtest.Config) {
	rep := r.Report
	stats := rep.TradeStats

	PrintHeader("Backtest Result",
		fmt.Sprintf("Run ID    : %s", r.RunID),
		fmt.Sprintf("Model     : %s", r.ModelID),
		fmt.Sprintf("Period    : %s ~ %s (%d trading days)", r.StartDate.Format(dateLayout), r.EndDate.Format(dateLayout), r.TradingDays),
		fmt.Sprintf("Holding   : %d trading days, top %d", cfg.HoldingPeriodDays, cfg.TopN),
	)

	fmt.Println("\n📊 Performance")
	PrintSeparator()
	fmt.Printf("  Initial Capital : %s\n", formatNumber(rep.InitialCapital))
	fmt.Printf("  Final Value     : %s\n", formatNumber(rep.FinalValue))
	fmt.Printf("  Total Return    : %s\n", formatPct(rep.TotalReturnPct))
	fmt.Printf("  Annualized      : %s\n", formatPct(rep.AnnualizedReturnPct))
	fmt.Printf("  Max Drawdown    : %s\n", formatPct(rep.MaxDrawdownPct))
	fmt.Printf("  Volatility      : %.2f%%\n", rep.VolatilityPct)
	fmt.Printf("  Sharpe Ratio    : %.2f\n", rep.SharpeRatio)
	fmt.Printf("  Sortino Ratio   : %.2f\n", rep.SortinoRatio)

	fmt.Println("\n📈 Trades")
	PrintSeparator()
	fmt.Printf("  Total           : %d (%d forced exits)\n", stats.TotalTrades, stats.ForcedExits)
	fmt.Printf("  Win Rate        : %.1f%% (%d W / %d L)\n", stats.WinRatePct, stats.WinningTrades, stats.LosingTrades)
	fmt.Printf("  Avg Win / Loss  : %s / %s\n", formatPct(stats.AvgWinPct), formatPct(stats.AvgLossPct))
	fmt.Printf("  Profit Factor   : %.2f\n", stats.ProfitFactor)
	fmt.Printf("  Avg Holding     : %.1f days\n", stats.AvgHoldingDays)
	if r.Failures > 0 {
		PrintWarning(fmt.Sprintf("%d model invocations failed and were excluded", r.Failures))
	}
}
