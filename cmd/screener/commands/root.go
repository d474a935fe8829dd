package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	modelsFile  string
	storeDriver string
	jsonOutput  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "멀티 모델 합의 스크리너 & 백테스트",
	Long: `Consensus Screener CLI

여러 스코어링 모델의 매수/매도 시그널을 종목별로 집계하고,
단일 모델을 과거 구간에 보유기간 정책으로 백테스트합니다.

Usage:
  go run ./cmd/screener [command]

Examples:
  go run ./cmd/screener models list
  go run ./cmd/screener consensus --tickers 005930,000660 --min-confirmation 2
  go run ./cmd/screener backtest run --model momentum --from 2023-01-02 --to 2023-12-29
  go run ./cmd/screener backtest compare --from 2023-01-02 --to 2023-12-29
  go run ./cmd/screener api
  go run ./cmd/screener scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&modelsFile, "catalog", "", "model catalog YAML (default: MODELS_FILE)")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "store driver override (postgres|sqlite|memory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
}
