package models

import (
	"context"
	"math"
	"time"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// RSIReversalParams 과매도 반등 / 과매수 되돌림
type RSIReversalParams struct {
	Period     int     `yaml:"period" json:"period" default:"14" validate:"gt=1"`
	Oversold   float64 `yaml:"oversold" json:"oversold" default:"30" validate:"gt=0,ltfield=Overbought"`
	Overbought float64 `yaml:"overbought" json:"overbought" default:"70" validate:"lt=100"`
}

// RSIReversal buys oversold and sells overbought tickers
type RSIReversal struct {
	params RSIReversalParams
	logger *logger.Logger
}

// NewRSIReversal creates the rsi_reversal model
func NewRSIReversal(p RSIReversalParams, log *logger.Logger) *RSIReversal {
	return &RSIReversal{params: p, logger: log}
}

func (m *RSIReversal) ID() string { return "rsi_reversal" }
func (m *RSIReversal) Category() contracts.Category { return contracts.CategoryTechnical }
func (m *RSIReversal) RequiredFields() []string { return nil }

// Evaluate scores the latest RSI against the bands
func (m *RSIReversal) Evaluate(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
	price, ok := lastClose(h)
	if !ok {
		return nil, nil
	}
	rsi, ok := RSI(h.Closes(), m.params.Period)
	if !ok {
		return nil, nil
	}

	var strength float64
	switch {
	case rsi <= m.params.Oversold:
		strength = 0.5 + 0.5*(m.params.Oversold-rsi)/m.params.Oversold
	case rsi >= m.params.Overbought:
		strength = -(0.5 + 0.5*(rsi-m.params.Overbought)/(100-m.params.Overbought))
	default:
		// 밴드 내부: 중립 구간
		mid := (m.params.Oversold + m.params.Overbought) / 2
		strength = (mid - rsi) / (m.params.Overbought - m.params.Oversold)
	}

	if m.logger.DebugEnabled() {
		m.logger.WithFields(map[string]interface{}{
			"model":    m.ID(),
			"ticker":   ticker,
			"rsi":      rsi,
			"strength": strength,
		}).Debug("Evaluated RSI reversal")
	}

	s := signalFromStrength(ticker, asOf, price, strength, 0.5)
	s.ModelID = m.ID()
	return s, nil
}

// MACrossoverParams 단기/장기 이동평균 교차
type MACrossoverParams struct {
	ShortPeriod int     `yaml:"short_period" json:"short_period" default:"20" validate:"gt=0,ltfield=LongPeriod"`
	LongPeriod  int     `yaml:"long_period" json:"long_period" default:"60" validate:"gt=0"`
	Sensitivity float64 `yaml:"sensitivity" json:"sensitivity" default:"10" validate:"gt=0"`
	Threshold   float64 `yaml:"threshold" json:"threshold" default:"0.3" validate:"gt=0,lte=1"`
}

// MACrossover follows the spread between a short and long moving average
type MACrossover struct {
	params MACrossoverParams
	logger *logger.Logger
}

// NewMACrossover creates the ma_crossover model
func NewMACrossover(p MACrossoverParams, log *logger.Logger) *MACrossover {
	return &MACrossover{params: p, logger: log}
}

func (m *MACrossover) ID() string { return "ma_crossover" }
func (m *MACrossover) Category() contracts.Category { return contracts.CategoryTechnical }
func (m *MACrossover) RequiredFields() []string { return nil }

// Evaluate scores the short/long MA spread
func (m *MACrossover) Evaluate(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
	price, ok := lastClose(h)
	if !ok {
		return nil, nil
	}
	closes := h.Closes()
	short, ok1 := SMA(closes, m.params.ShortPeriod)
	long, ok2 := SMA(closes, m.params.LongPeriod)
	if !ok1 || !ok2 || long == 0 {
		return nil, nil
	}

	spread := (short - long) / long
	strength := math.Tanh(spread * m.params.Sensitivity)

	if m.logger.DebugEnabled() {
		m.logger.WithFields(map[string]interface{}{
			"model":  m.ID(),
			"ticker": ticker,
			"short":  short,
			"long":   long,
			"spread": spread,
		}).Debug("Evaluated MA crossover")
	}

	s := signalFromStrength(ticker, asOf, price, strength, m.params.Threshold)
	s.ModelID = m.ID()
	return s, nil
}

// MomentumParams 1개월/3개월 수익률 + 거래량 증가율
type MomentumParams struct {
	ShortDays int     `yaml:"short_days" json:"short_days" default:"20" validate:"gt=0,ltfield=LongDays"`
	LongDays  int     `yaml:"long_days" json:"long_days" default:"60" validate:"gt=0"`
	Threshold float64 `yaml:"threshold" json:"threshold" default:"0.3" validate:"gt=0,lte=1"`
}

// Momentum combines medium-term returns with volume growth
type Momentum struct {
	params MomentumParams
	logger *logger.Logger
}

// NewMomentum creates the momentum model
func NewMomentum(p MomentumParams, log *logger.Logger) *Momentum {
	return &Momentum{params: p, logger: log}
}

func (m *Momentum) ID() string { return "momentum" }
func (m *Momentum) Category() contracts.Category { return contracts.CategoryTechnical }
func (m *Momentum) RequiredFields() []string { return nil }

// Evaluate scores weighted returns and volume growth
func (m *Momentum) Evaluate(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
	price, ok := lastClose(h)
	if !ok {
		return nil, nil
	}
	closes := h.Closes()
	retShort, ok1 := Return(closes, m.params.ShortDays)
	retLong, ok2 := Return(closes, m.params.LongDays)
	if !ok1 || !ok2 {
		return nil, nil
	}
	volumeRate := volumeGrowth(h.Volumes(), m.params.ShortDays)

	// Return1M 40%, Return3M 40%, VolumeRate 20%
	raw := retShort*0.4 + retLong*0.4 + volumeRate*0.2
	strength := math.Tanh(raw * 2)

	if m.logger.DebugEnabled() {
		m.logger.WithFields(map[string]interface{}{
			"model":       m.ID(),
			"ticker":      ticker,
			"return_1m":   retShort,
			"return_3m":   retLong,
			"volume_rate": volumeRate,
		}).Debug("Evaluated momentum")
	}

	s := signalFromStrength(ticker, asOf, price, strength, m.params.Threshold)
	s.ModelID = m.ID()
	return s, nil
}

// volumeGrowth compares the recent window's average volume to the prior window
func volumeGrowth(volumes []float64, days int) float64 {
	if days <= 0 || len(volumes) < days*2 {
		return 0
	}
	recent, _ := SMA(volumes, days)
	past, _ := SMA(volumes[:len(volumes)-days], days)
	if past == 0 {
		return 0
	}
	return (recent - past) / past
}

// MACDTrendParams MACD 히스토그램 추세
type MACDTrendParams struct {
	Fast      int     `yaml:"fast" json:"fast" default:"12" validate:"gt=0,ltfield=Slow"`
	Slow      int     `yaml:"slow" json:"slow" default:"26" validate:"gt=0"`
	Signal    int     `yaml:"signal" json:"signal" default:"9" validate:"gt=0"`
	Scale     float64 `yaml:"scale" json:"scale" default:"100" validate:"gt=0"`
	Threshold float64 `yaml:"threshold" json:"threshold" default:"0.3" validate:"gt=0,lte=1"`
}

// MACDTrend follows the MACD histogram normalized by price
type MACDTrend struct {
	params MACDTrendParams
	logger *logger.Logger
}

// NewMACDTrend creates the macd_trend model
func NewMACDTrend(p MACDTrendParams, log *logger.Logger) *MACDTrend {
	return &MACDTrend{params: p, logger: log}
}

func (m *MACDTrend) ID() string { return "macd_trend" }
func (m *MACDTrend) Category() contracts.Category { return contracts.CategoryTechnical }
func (m *MACDTrend) RequiredFields() []string { return nil }

// Evaluate scores the MACD histogram
func (m *MACDTrend) Evaluate(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
	price, ok := lastClose(h)
	if !ok {
		return nil, nil
	}
	line, signal, ok := MACD(h.Closes(), m.params.Fast, m.params.Slow, m.params.Signal)
	if !ok {
		return nil, nil
	}

	hist := line - signal
	strength := math.Tanh(hist / price * m.params.Scale)

	if m.logger.DebugEnabled() {
		m.logger.WithFields(map[string]interface{}{
			"model":  m.ID(),
			"ticker": ticker,
			"macd":   line,
			"signal": signal,
		}).Debug("Evaluated MACD trend")
	}

	s := signalFromStrength(ticker, asOf, price, strength, m.params.Threshold)
	s.ModelID = m.ID()
	return s, nil
}

// VolumeBreakoutParams 거래량 급증 + 가격 방향
type VolumeBreakoutParams struct {
	Lookback int     `yaml:"lookback" json:"lookback" default:"20" validate:"gt=0"`
	Multiple float64 `yaml:"multiple" json:"multiple" default:"2" validate:"gt=0"`
}

// VolumeBreakout signals in the direction of price on a volume spike
type VolumeBreakout struct {
	params VolumeBreakoutParams
	logger *logger.Logger
}

// NewVolumeBreakout creates the volume_breakout model
func NewVolumeBreakout(p VolumeBreakoutParams, log *logger.Logger) *VolumeBreakout {
	return &VolumeBreakout{params: p, logger: log}
}

func (m *VolumeBreakout) ID() string { return "volume_breakout" }
func (m *VolumeBreakout) Category() contracts.Category { return contracts.CategoryTechnical }
func (m *VolumeBreakout) RequiredFields() []string { return nil }

// Evaluate compares today's volume to the trailing average
func (m *VolumeBreakout) Evaluate(_ context.Context, ticker string, asOf time.Time, h *contracts.History) (*contracts.Signal, error) {
	price, ok := lastClose(h)
	if !ok || h.Len() < m.params.Lookback+1 {
		return nil, nil
	}
	volumes := h.Volumes()
	avg, ok := SMA(volumes[:len(volumes)-1], m.params.Lookback)
	if !ok || avg == 0 {
		return nil, nil
	}
	ratio := volumes[len(volumes)-1] / avg
	change, _ := Return(h.Closes(), 1)

	strength := 0.0
	if ratio >= m.params.Multiple && change != 0 {
		// 배수 초과분에 비례, 최소 0.5
		strength = math.Min(1, 0.5+(ratio-m.params.Multiple)/(2*m.params.Multiple))
		if change < 0 {
			strength = -strength
		}
	}

	if m.logger.DebugEnabled() {
		m.logger.WithFields(map[string]interface{}{
			"model":        m.ID(),
			"ticker":       ticker,
			"volume_ratio": ratio,
			"change":       change,
		}).Debug("Evaluated volume breakout")
	}

	s := signalFromStrength(ticker, asOf, price, strength, 0.5)
	s.ModelID = m.ID()
	return s, nil
}
