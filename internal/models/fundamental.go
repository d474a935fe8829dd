package models

import (
	"context"
	"math"
	"time"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// ValueParams 저PER/저PBR 가치 모델
type ValueParams struct {
	FairPER   float64 `yaml:"fair_per" json:"fair_per" default:"15" validate:"gt=0"`
	FairPBR   float64 `yaml:"fair_pbr" json:"fair_pbr" default:"1.5" validate:"gt=0"`
	FairPSR   float64 `yaml:"fair_psr" json:"fair_psr" default:"2" validate:"gt=0"`
	Threshold float64 `yaml:"threshold" json:"threshold" default:"0.3" validate:"gt=0,lte=1"`
}

// Value favors low valuation multiples
type Value struct {
	params ValueParams
	logger *logger.Logger
}

// NewValue creates the value model
func NewValue(p ValueParams, log *logger.Logger) *Value {
	return &Value{params: p, logger: log}
}

func (m *Value) ID() string { return "value" }
func (m *Value) Category() contracts.Category { return contracts.CategoryFundamental }

// RequiredFields PSR은 선택 (없으면 가중치 재분배)
func (m *Value) RequiredFields() []string {
	return []string{contracts.FieldPER, contracts.FieldPBR}
}

// Evaluate scores the latest point-in-time multiples
func (m *Value) Evaluate(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
	price, ok := lastClose(h)
	f := h.LatestFundamentals()
	if !ok || !f.Has(m.RequiredFields()...) {
		return nil, nil
	}

	per, _ := f.Value(contracts.FieldPER)
	pbr, _ := f.Value(contracts.FieldPBR)

	// 적자 기업(PER ≤ 0)은 고평가로 취급
	perScore := -1.0
	if per > 0 {
		perScore = clamp((m.params.FairPER - per) / m.params.FairPER)
	}
	pbrScore := -1.0
	if pbr > 0 {
		pbrScore = clamp((m.params.FairPBR - pbr) / m.params.FairPBR)
	}

	// PER 50%, PBR 30%, PSR 20%
	raw := perScore*0.5 + pbrScore*0.3
	if psr, ok := f.Value(contracts.FieldPSR); ok && psr > 0 {
		raw += clamp((m.params.FairPSR-psr)/m.params.FairPSR) * 0.2
	} else {
		raw /= 0.8
	}
	strength := math.Tanh(raw * 1.5)

	if m.logger.DebugEnabled() {
		m.logger.WithFields(map[string]interface{}{
			"model":  m.ID(),
			"ticker": ticker,
			"per":    per,
			"pbr":    pbr,
		}).Debug("Evaluated value")
	}

	s := signalFromStrength(ticker, asOf, price, strength, m.params.Threshold)
	s.ModelID = m.ID()
	return s, nil
}

// QualityParams ROE / 부채비율 품질 모델
type QualityParams struct {
	BaseROE       float64 `yaml:"base_roe" json:"base_roe" default:"10" validate:"gt=0"`
	BaseDebtRatio float64 `yaml:"base_debt_ratio" json:"base_debt_ratio" default:"100" validate:"gt=0"`
	Threshold     float64 `yaml:"threshold" json:"threshold" default:"0.3" validate:"gt=0,lte=1"`
}

// Quality favors high ROE and low leverage
type Quality struct {
	params QualityParams
	logger *logger.Logger
}

// NewQuality creates the quality model
func NewQuality(p QualityParams, log *logger.Logger) *Quality {
	return &Quality{params: p, logger: log}
}

func (m *Quality) ID() string { return "quality" }
func (m *Quality) Category() contracts.Category { return contracts.CategoryFundamental }

func (m *Quality) RequiredFields() []string {
	return []string{contracts.FieldROE, contracts.FieldDebtRatio}
}

// Evaluate scores profitability against leverage
func (m *Quality) Evaluate(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
	price, ok := lastClose(h)
	f := h.LatestFundamentals()
	if !ok || !f.Has(m.RequiredFields()...) {
		return nil, nil
	}

	roe, _ := f.Value(contracts.FieldROE)
	debt, _ := f.Value(contracts.FieldDebtRatio)

	// ROE 60%, DebtRatio 40%
	roeScore := clamp((roe - m.params.BaseROE) / 15)
	debtScore := clamp((m.params.BaseDebtRatio - debt) / m.params.BaseDebtRatio)
	strength := math.Tanh((roeScore*0.6 + debtScore*0.4) * 1.5)

	if m.logger.DebugEnabled() {
		m.logger.WithFields(map[string]interface{}{
			"model":      m.ID(),
			"ticker":     ticker,
			"roe":        roe,
			"debt_ratio": debt,
		}).Debug("Evaluated quality")
	}

	s := signalFromStrength(ticker, asOf, price, strength, m.params.Threshold)
	s.ModelID = m.ID()
	return s, nil
}
