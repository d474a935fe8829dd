package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/screener/internal/consensus"
	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// ConsensusJob writes a daily consensus snapshot for the whole store universe
type ConsensusJob struct {
	aggregator      *consensus.Aggregator
	store           contracts.TimeSeriesStore
	schedule        string
	outputDir       string
	minConfirmation int
	now             func() time.Time
	logger          *logger.Logger
}

// NewConsensusJob creates a new consensus snapshot job
func NewConsensusJob(
	aggregator *consensus.Aggregator,
	store contracts.TimeSeriesStore,
	schedule string,
	outputDir string,
	minConfirmation int,
	log *logger.Logger,
) *ConsensusJob {
	return &ConsensusJob{
		aggregator:      aggregator,
		store:           store,
		schedule:        schedule,
		outputDir:       outputDir,
		minConfirmation: minConfirmation,
		now:             time.Now,
		logger:          log.WithField("job", "consensus_snapshot"),
	}
}

// WithClock overrides the job clock (tests)
func (j *ConsensusJob) WithClock(now func() time.Time) *ConsensusJob {
	j.now = now
	return j
}

// Name returns the job name
func (j *ConsensusJob) Name() string {
	return "consensus_snapshot"
}

// Schedule returns the cron schedule
func (j *ConsensusJob) Schedule() string {
	return j.schedule
}

// Run aggregates every ticker and writes consensus-YYYY-MM-DD.json plus latest.json
func (j *ConsensusJob) Run(ctx context.Context) error {
	tickers, err := j.store.Tickers(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}
	if len(tickers) == 0 {
		j.logger.Warn("Store has no tickers, skipping snapshot")
		return nil
	}

	asOf := j.now().UTC()
	result, err := j.aggregator.Aggregate(ctx, consensus.Request{
		Tickers:         tickers,
		MinConfirmation: j.minConfirmation,
		AsOf:            asOf,
	})
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(j.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("consensus-%s.json", result.AsOf.Format("2006-01-02"))
	for _, file := range []string{name, "latest.json"} {
		if err := writeAtomic(filepath.Join(j.outputDir, file), data); err != nil {
			return err
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"file":        name,
		"tickers":     len(tickers),
		"strong_buy":  len(result.StrongBuy),
		"strong_sell": len(result.StrongSell),
		"coverage":    result.CoverageRatio,
	}).Info("Consensus snapshot written")

	return nil
}

// writeAtomic writes to a temp file then renames it into place
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
