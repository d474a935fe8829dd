package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wonny/screener/internal/api/handlers"
	"github.com/wonny/screener/internal/backtest"
	"github.com/wonny/screener/internal/consensus"
	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/models"
	"github.com/wonny/screener/internal/s0_data"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/metrics"
)

// always returns a model that buys every ticker in scores on every day
func always(id string, cat contracts.Category, scores map[string]float64) *models.Func {
	return &models.Func{
		ModelID: id,
		Cat:     cat,
		Fn: func(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
			score, ok := scores[ticker]
			if !ok {
				return nil, nil
			}
			bar, ok := h.Last()
			if !ok {
				return nil, nil
			}
			return &contracts.Signal{
				Ticker:        ticker,
				Type:          contracts.SignalBuy,
				Score:         score,
				PriceAtSignal: bar.Close,
				AsOf:          asOf,
			}, nil
		},
	}
}

func newTestRouter(t *testing.T, limiter *rate.Limiter) http.Handler {
	t.Helper()
	log := logger.NewNop()
	rec := metrics.New()

	store := s0_data.NewMemoryStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, ticker := range []string{"AAA", "BBB"} {
		for i, d := range backtest.TradingDays(start, start.AddDate(0, 1, 0)) {
			p := 100 + float64(i)
			store.AddBars(ticker, contracts.Bar{Date: d, Open: p, High: p, Low: p, Close: p, Volume: 100})
		}
	}

	reg := models.NewRegistry()
	require.NoError(t, reg.Register(always("alpha", contracts.CategoryTechnical, map[string]float64{"AAA": 80, "BBB": 60})))
	require.NoError(t, reg.Register(always("beta", contracts.CategoryTechnical, map[string]float64{"AAA": 70})))
	require.NoError(t, reg.Register(always("gamma", contracts.CategoryFundamental, map[string]float64{"BBB": 50})))

	agg := consensus.NewAggregator(reg, store, consensus.DefaultConfig(), rec, log)
	engine := backtest.NewEngine(store, rec, log)
	h := handlers.NewScreenerHandler(reg, store, agg, engine, "hash123", 2, log)
	return NewRouter(h, rec, limiter, log)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"screener-api"}`, rec.Body.String())
}

func TestListModels(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models      []handlers.ModelInfo `json:"models"`
		Count       int                  `json:"count"`
		CatalogHash string               `json:"catalog_hash"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "hash123", body.CatalogHash)
	assert.Equal(t, "alpha", body.Models[0].ID)
	assert.NotNil(t, body.Models[0].RequiredFields)
}

func TestConsensusEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := do(t, router, http.MethodPost, "/api/consensus",
		`{"tickers":["AAA","BBB"],"model_ids":["alpha","beta"],"min_confirmation":2,"as_of":"2024-01-31"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result contracts.ConsensusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.StrongBuy, 1)
	assert.Equal(t, "AAA", result.StrongBuy[0].Ticker)
	assert.Equal(t, 2, result.StrongBuy[0].Confirmations)
	assert.Equal(t, 2, result.TotalModelsAnalyzed)
	assert.Empty(t, result.ModerateBuy)
}

func TestConsensusEndpoint_DefaultsToStoreUniverse(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodPost, "/api/consensus", `{"min_confirmation":1,"category":"fundamental","as_of":"2024-01-31"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result contracts.ConsensusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TotalModelsAnalyzed)
	require.Len(t, result.StrongBuy, 1)
	assert.Equal(t, "BBB", result.StrongBuy[0].Ticker)
}

func TestConsensusEndpoint_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown model", `{"tickers":["AAA"],"model_ids":["nope"]}`},
		{"bad category", `{"tickers":["AAA"],"category":"astrology"}`},
		{"bad date", `{"tickers":["AAA"],"as_of":"31-01-2024"}`},
		{"negative confirmation", `{"tickers":["AAA"],"min_confirmation":-1}`},
		{"blank ticker", `{"tickers":["AAA",""]}`},
		{"malformed", `{"tickers":`},
	}
	router := newTestRouter(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/consensus", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestBacktestEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodPost, "/api/backtest",
		`{"model_ids":["alpha"],"tickers":["AAA"],"start_date":"2024-01-01","end_date":"2024-01-31","initial_capital":1000,"holding_period_days":5,"top_n":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results []backtest.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	res := body.Results[0]
	assert.Equal(t, "alpha", res.ModelID)
	assert.Len(t, res.EquityCurve, 23)
	require.NotEmpty(t, res.Trades)
	for _, tr := range res.Trades {
		assert.True(t, tr.ExitDate.After(tr.EntryDate))
	}
}

func TestBacktestEndpoint_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing models", `{"start_date":"2024-01-01","end_date":"2024-01-31"}`},
		{"missing dates", `{"model_ids":["alpha"]}`},
		{"end before start", `{"model_ids":["alpha"],"tickers":["AAA"],"start_date":"2024-02-01","end_date":"2024-01-01"}`},
		{"zero holding", `{"model_ids":["alpha"],"start_date":"2024-01-01","end_date":"2024-01-31","holding_period_days":-1}`},
		{"unknown model", `{"model_ids":["zzz"],"start_date":"2024-01-01","end_date":"2024-01-31"}`},
	}
	router := newTestRouter(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/backtest", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCompareEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodPost, "/api/backtest/compare",
		`{"model_ids":["alpha","beta","gamma"],"start_date":"2024-01-01","end_date":"2024-01-31","initial_capital":1000,"holding_period_days":3,"top_n":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Rankings []backtest.Ranking `json:"rankings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rankings, 3)
	for i, r := range body.Rankings {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	do(t, router, http.MethodPost, "/api/consensus", `{"tickers":["AAA"],"min_confirmation":1}`)

	rec := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "screener_model_invocations_total")
	assert.Contains(t, rec.Body.String(), "screener_consensus_coverage_ratio")
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, rate.NewLimiter(rate.Every(time.Hour), 1))

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/models", "").Code)
	rec := do(t, router, http.MethodGet, "/api/models", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health는 제한 대상 아님
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "").Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint_DisabledWithoutRecorder(t *testing.T) {
	log := logger.NewNop()
	store := s0_data.NewMemoryStore()
	reg := models.NewRegistry()
	agg := consensus.NewAggregator(reg, store, consensus.DefaultConfig(), nil, log)
	h := handlers.NewScreenerHandler(reg, store, agg, backtest.NewEngine(store, nil, log), "", 1, log)
	router := NewRouter(h, nil, nil, log)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/models", "").Code)
}
