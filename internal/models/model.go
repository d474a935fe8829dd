package models

import (
	"context"
	"math"
	"time"

	"github.com/wonny/screener/internal/contracts"
)

// EvaluateFunc is the function shape of a scoring model
type EvaluateFunc func(ctx context.Context, ticker string, asOf time.Time, history *contracts.History) (*contracts.Signal, error)

// Func adapts a plain function to contracts.ScoringModel
type Func struct {
	ModelID  string
	Cat      contracts.Category
	Required []string
	Fn       EvaluateFunc
}

var _ contracts.ScoringModel = (*Func)(nil)

// ID returns the model identifier
func (f *Func) ID() string { return f.ModelID }

// Category returns the model category
func (f *Func) Category() contracts.Category { return f.Cat }

// RequiredFields returns required fundamental fields
func (f *Func) RequiredFields() []string { return f.Required }

// Evaluate calls the wrapped function and stamps the model id
func (f *Func) Evaluate(ctx context.Context, ticker string, asOf time.Time, history *contracts.History) (*contracts.Signal, error) {
	sig, err := f.Fn(ctx, ticker, asOf, history)
	if sig != nil {
		sig.ModelID = f.ModelID
	}
	return sig, err
}

// signalFromStrength maps a strength in [-1, 1] to a Signal
// |strength| * 100 = score, threshold 미만은 neutral
func signalFromStrength(ticker string, asOf time.Time, price, strength, threshold float64) *contracts.Signal {
	strength = clamp(strength)

	sigType := contracts.SignalNeutral
	switch {
	case strength >= threshold:
		sigType = contracts.SignalBuy
	case strength <= -threshold:
		sigType = contracts.SignalSell
	}

	return &contracts.Signal{
		Ticker:        ticker,
		Type:          sigType,
		Score:         math.Round(math.Abs(strength)*10000) / 100,
		PriceAtSignal: price,
		AsOf:          asOf,
	}
}

// lastClose returns the close of the newest bar in history
func lastClose(history *contracts.History) (float64, bool) {
	last, ok := history.Last()
	if !ok || last.Close <= 0 {
		return 0, false
	}
	return last.Close, true
}
