package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wonny/screener/internal/backtest"
	"github.com/wonny/screener/internal/consensus"
	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/models"
	"github.com/wonny/screener/pkg/httputil"
	"github.com/wonny/screener/pkg/logger"
)

const dateLayout = "2006-01-02"

// ScreenerHandler serves model listing, consensus and backtest endpoints
// ⭐ SSOT: 스크리너 API 핸들러는 이 구조체에서만
type ScreenerHandler struct {
	registry    *models.Registry
	store       contracts.TimeSeriesStore
	aggregator  *consensus.Aggregator
	engine      *backtest.Engine
	catalogHash string
	workers     int
	logger      *logger.Logger
}

// NewScreenerHandler creates a new screener handler
func NewScreenerHandler(
	registry *models.Registry,
	store contracts.TimeSeriesStore,
	aggregator *consensus.Aggregator,
	engine *backtest.Engine,
	catalogHash string,
	workers int,
	log *logger.Logger,
) *ScreenerHandler {
	return &ScreenerHandler{
		registry:    registry,
		store:       store,
		aggregator:  aggregator,
		engine:      engine,
		catalogHash: catalogHash,
		workers:     workers,
		logger:      log.WithField("module", "api"),
	}
}

// ModelInfo describes one registered model
type ModelInfo struct {
	ID             string             `json:"id"`
	Category       contracts.Category `json:"category"`
	RequiredFields []string           `json:"required_fields"`
}

// ListModels returns registered models
// GET /api/models
func (h *ScreenerHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	out := make([]ModelInfo, 0, len(list))
	for _, m := range list {
		fields := m.RequiredFields()
		if fields == nil {
			fields = []string{}
		}
		out = append(out, ModelInfo{ID: m.ID(), Category: m.Category(), RequiredFields: fields})
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"models":       out,
		"count":        len(out),
		"catalog_hash": h.catalogHash,
	})
}

// ConsensusRequest is the body of POST /api/consensus
type ConsensusRequest struct {
	Tickers         []string `json:"tickers" validate:"omitempty,dive,required"` // 비우면 저장소 전체 종목
	ModelIDs        []string `json:"model_ids" validate:"omitempty,dive,required"`
	MinConfirmation int      `json:"min_confirmation" default:"2" validate:"gte=1"`
	Category        string   `json:"category" validate:"omitempty,oneof=technical fundamental"`
	AsOf            string   `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

// Consensus runs the multi-model aggregation
// POST /api/consensus
func (h *ScreenerHandler) Consensus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConsensusRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.RespondRequestError(w, err)
		return
	}

	asOf, err := parseDate(req.AsOf)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid 'as_of' date format (expected YYYY-MM-DD)")
		return
	}

	tickers, err := h.universe(ctx, req.Tickers)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load universe")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to load universe")
		return
	}

	result, err := h.aggregator.Aggregate(ctx, consensus.Request{
		Tickers:         tickers,
		ModelIDs:        req.ModelIDs,
		MinConfirmation: req.MinConfirmation,
		Category:        contracts.Category(req.Category),
		AsOf:            asOf,
	})
	if err != nil {
		h.respondRunError(w, err, "consensus")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// BacktestRequest is the body of POST /api/backtest and /api/backtest/compare
type BacktestRequest struct {
	ModelIDs          []string `json:"model_ids" validate:"required,min=1,dive,required"`
	Tickers           []string `json:"tickers" validate:"omitempty,dive,required"`
	StartDate         string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate           string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	InitialCapital    float64  `json:"initial_capital" default:"100000000" validate:"gt=0"`
	HoldingPeriodDays int      `json:"holding_period_days" default:"20" validate:"gt=0"`
	TopN              int      `json:"top_n" default:"10" validate:"gt=0"`
	CommissionRate    float64  `json:"commission_rate" validate:"gte=0,lt=1"`
	SlippageRate      float64  `json:"slippage_rate" validate:"gte=0,lt=1"`
}

// Backtest runs one backtest per requested model
// POST /api/backtest
func (h *ScreenerHandler) Backtest(w http.ResponseWriter, r *http.Request) {
	results, ok := h.runBacktests(w, r)
	if !ok {
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// CompareBacktests runs backtests and returns models ranked by Sharpe ratio
// POST /api/backtest/compare
func (h *ScreenerHandler) CompareBacktests(w http.ResponseWriter, r *http.Request) {
	results, ok := h.runBacktests(w, r)
	if !ok {
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"rankings": backtest.Rank(results),
	})
}

func (h *ScreenerHandler) runBacktests(w http.ResponseWriter, r *http.Request) ([]*backtest.Result, bool) {
	ctx := r.Context()

	var req BacktestRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.RespondRequestError(w, err)
		return nil, false
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid 'start_date' format (expected YYYY-MM-DD)")
		return nil, false
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid 'end_date' format (expected YYYY-MM-DD)")
		return nil, false
	}

	selected, err := h.registry.Select(req.ModelIDs, "")
	if err != nil {
		h.respondRunError(w, err, "backtest")
		return nil, false
	}

	tickers, err := h.universe(ctx, req.Tickers)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load universe")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to load universe")
		return nil, false
	}

	results, err := h.engine.RunMany(ctx, selected, backtest.Config{
		Tickers:           tickers,
		StartDate:         start,
		EndDate:           end,
		InitialCapital:    req.InitialCapital,
		HoldingPeriodDays: req.HoldingPeriodDays,
		TopN:              req.TopN,
		CommissionRate:    req.CommissionRate,
		SlippageRate:      req.SlippageRate,
	}, h.workers)
	if err != nil {
		h.respondRunError(w, err, "backtest")
		return nil, false
	}
	return results, true
}

// universe returns the requested tickers or every ticker in the store
func (h *ScreenerHandler) universe(ctx context.Context, tickers []string) ([]string, error) {
	if len(tickers) > 0 {
		return tickers, nil
	}
	return h.store.Tickers(ctx)
}

// respondRunError maps configuration errors to 400 and everything else to 500
func (h *ScreenerHandler) respondRunError(w http.ResponseWriter, err error, op string) {
	switch {
	case contracts.IsConfigError(err):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.WithError(err).WithField("op", op).Warn("Request abandoned")
		httputil.RespondError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		h.logger.WithError(err).WithField("op", op).Error("Request failed")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to run "+op)
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}
