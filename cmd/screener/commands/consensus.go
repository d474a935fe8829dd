package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/consensus"
	"github.com/wonny/screener/internal/contracts"
)

// consensusCmd represents the consensus command
var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "멀티 모델 합의 집계",
	Long: `선택한 모델을 유니버스 전 종목에 실행하고 매수/매도 합의를 버킷으로 분류합니다.

Buckets:
  strong_buy / moderate_buy / strong_sell / moderate_sell

Example:
  go run ./cmd/screener consensus --min-confirmation 2
  go run ./cmd/screener consensus --tickers 005930,000660 --models rsi_reversal,momentum,value
  go run ./cmd/screener consensus --category technical --as-of 2024-06-28 --json`,
	RunE: runConsensus,
}

var (
	consensusTickers         string
	consensusModels          string
	consensusMinConfirmation int
	consensusCategory        string
	consensusAsOf            string
)

func init() {
	rootCmd.AddCommand(consensusCmd)

	consensusCmd.Flags().StringVar(&consensusTickers, "tickers", "", "종목 코드 (쉼표 구분, 기본: 저장소 전체)")
	consensusCmd.Flags().StringVar(&consensusModels, "models", "", "모델 ID (쉼표 구분, 기본: 전체)")
	consensusCmd.Flags().IntVar(&consensusMinConfirmation, "min-confirmation", 2, "최소 동의 모델 수")
	consensusCmd.Flags().StringVar(&consensusCategory, "category", "", "모델 카테고리 (technical|fundamental)")
	consensusCmd.Flags().StringVar(&consensusAsOf, "as-of", "", "기준일 (YYYY-MM-DD, 기본: 오늘)")
}

func runConsensus(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag("as-of", consensusAsOf, time.Time{})
	if err != nil {
		return err
	}

	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tickers := splitList(consensusTickers)
	if len(tickers) == 0 {
		tickers, err = d.store.Tickers(ctx)
		if err != nil {
			return fmt.Errorf("load universe: %w", err)
		}
	}

	result, err := d.aggregator.Aggregate(ctx, consensus.Request{
		Tickers:         tickers,
		ModelIDs:        splitList(consensusModels),
		MinConfirmation: consensusMinConfirmation,
		Category:        contracts.Category(consensusCategory),
		AsOf:            asOf,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return PrintJSON(result)
	}
	printConsensus(result, len(tickers))
	return nil
}

func printConsensus(r *contracts.ConsensusResult, universe int) {
	PrintHeader("Consensus Screener",
		fmt.Sprintf("As of     : %s", r.AsOf.Format(dateLayout)),
		fmt.Sprintf("Universe  : %d tickers", universe),
		fmt.Sprintf("Models    : %d analyzed, %d skipped %v", r.TotalModelsAnalyzed, len(r.SkippedModels), r.SkippedModels),
		fmt.Sprintf("Coverage  : %.1f%% (%d evaluations, %d failures)", r.CoverageRatio*100, r.Evaluations, r.Failures),
	)

	printBucket("🟢 Strong Buy", r.StrongBuy)
	printBucket("🟡 Moderate Buy", r.ModerateBuy)
	printBucket("🔴 Strong Sell", r.StrongSell)
	printBucket("🟠 Moderate Sell", r.ModerateSell)

	if r.Count() == 0 {
		PrintWarning("No ticker reached the confirmation threshold")
	}
}

func printBucket(title string, entries []contracts.ConsensusEntry) {
	fmt.Printf("\n%s (%d)\n", title, len(entries))
	if len(entries) == 0 {
		return
	}
	PrintSeparator()
	fmt.Printf("  %-10s %5s %9s  %s\n", "Ticker", "Conf", "AvgScore", "Models")
	for _, e := range entries {
		fmt.Printf("  %-10s %5d %9.2f  %s\n", e.Ticker, e.Confirmations, e.AverageScore, strings.Join(e.ContributingModels, ","))
	}
}
