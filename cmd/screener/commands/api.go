package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/api"
	"github.com/wonny/screener/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "HTTP API 서버 시작",
	Long: `스크리너 HTTP API 서버를 시작합니다.

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/models
  POST /api/consensus
  POST /api/backtest
  POST /api/backtest/compare

Example:
  go run ./cmd/screener api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	d.log.WithFields(map[string]interface{}{
		"port": d.cfg.Port,
		"env":  d.cfg.Env,
	}).Info("Initializing API server")

	h := handlers.NewScreenerHandler(d.registry, d.store, d.aggregator, d.engine, d.catalogHash, d.cfg.Aggregator.Workers, d.log)
	exposed := d.metrics
	if !d.cfg.MetricsEnabled {
		// 수집은 계속, /metrics 노출만 끔
		exposed = nil
	}
	router := api.NewRouter(h, exposed, api.NewLimiter(d.cfg), d.log)
	server := api.New(d.cfg, d.log, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return err
	}

	d.log.Info("Server stopped")
	return nil
}
