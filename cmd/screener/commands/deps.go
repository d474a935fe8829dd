package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/wonny/screener/internal/backtest"
	"github.com/wonny/screener/internal/consensus"
	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/models"
	"github.com/wonny/screener/internal/s0_data"
	"github.com/wonny/screener/pkg/config"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/metrics"
)

// deps holds everything a command needs
// ⭐ SSOT: 의존성 조립은 여기서만
type deps struct {
	cfg         *config.Config
	log         *logger.Logger
	metrics     *metrics.Recorder
	store       contracts.TimeSeriesStore
	registry    *models.Registry
	catalogHash string
	aggregator  *consensus.Aggregator
	engine      *backtest.Engine
	close       func()
}

// loadConfig reads env config with CLI overrides applied
func loadConfig() (*config.Config, error) {
	if storeDriver != "" {
		// Load 전에 반영해야 드라이버별 검증이 맞게 동작
		if err := os.Setenv("STORE_DRIVER", storeDriver); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if modelsFile != "" {
		cfg.ModelsFile = modelsFile
	}
	return cfg, nil
}

// loadRegistry builds the model registry from the catalog file
// 파일이 없으면 기본 카탈로그 사용
func loadRegistry(path string, log *logger.Logger) (*models.Registry, string, error) {
	cat, _, err := models.LoadCatalog(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", path).Warn("Model catalog not found, using built-in defaults")
		cat = models.DefaultCatalog()
	} else if err != nil {
		return nil, "", fmt.Errorf("load model catalog: %w", err)
	}

	reg, err := models.Build(cat, log)
	if err != nil {
		return nil, "", fmt.Errorf("build models: %w", err)
	}
	hash, err := models.Hash(cat)
	if err != nil {
		return nil, "", fmt.Errorf("hash catalog: %w", err)
	}
	return reg, hash, nil
}

func bootstrap() (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)
	rec := metrics.New()

	opened, err := s0_data.Open(cfg, log, rec)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg, hash, err := loadRegistry(cfg.ModelsFile, log)
	if err != nil {
		opened.Close()
		return nil, err
	}

	aggCfg := consensus.Config{
		Workers:            cfg.Aggregator.Workers,
		StrongRatio:        cfg.Aggregator.StrongRatio,
		Lookback:           cfg.Aggregator.Lookback,
		BreakerMaxFailures: uint32(cfg.Aggregator.BreakerMaxFailures),
	}

	log.WithFields(map[string]interface{}{
		"models":       reg.Len(),
		"catalog":      cfg.ModelsFile,
		"catalog_hash": hash,
	}).Info("Model registry loaded")

	return &deps{
		cfg:         cfg,
		log:         log,
		metrics:     rec,
		store:       opened.Store,
		registry:    reg,
		catalogHash: hash,
		aggregator:  consensus.NewAggregator(reg, opened.Store, aggCfg, rec, log),
		engine:      backtest.NewEngine(opened.Store, rec, log),
		close:       opened.Close,
	}, nil
}
