package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
)

func TestSimulator_BuySellRoundTrip(t *testing.T) {
	sim := NewSimulator(1000, 0, 0)
	d0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sim.Buy("AAA", d0, 0, 50, 500, 75))
	assert.True(t, sim.Holds("AAA"))
	assert.Equal(t, 1, sim.OpenCount())
	assert.InDelta(t, 500.0, sim.Cash(), 1e-9)
	assert.InDelta(t, 1000.0, sim.Equity(), 1e-9)

	sim.Mark("AAA", 60)
	assert.InDelta(t, 1100.0, sim.Equity(), 1e-9)

	trade, err := sim.Sell("AAA", d0.AddDate(0, 0, 3), 3, 60, contracts.ExitHoldingPeriod)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, trade.PnL, 1e-9)
	assert.InDelta(t, 20.0, trade.ReturnPct, 1e-9)
	assert.Equal(t, 3, trade.HoldingDays)
	assert.Equal(t, 75.0, trade.EntryScore)
	assert.False(t, sim.Holds("AAA"))
	assert.InDelta(t, 1100.0, sim.Cash(), 1e-9)
	assert.Len(t, sim.Trades(), 1)
}

func TestSimulator_Rejects(t *testing.T) {
	sim := NewSimulator(1000, 0, 0)
	d0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Error(t, sim.Buy("AAA", d0, 0, 0, 100, 1), "zero price")
	assert.Error(t, sim.Buy("AAA", d0, 0, 10, 2000, 1), "more than cash")

	require.NoError(t, sim.Buy("AAA", d0, 0, 10, 100, 1))
	assert.Error(t, sim.Buy("AAA", d0, 0, 10, 100, 1), "no pyramiding")

	_, err := sim.Sell("AAA", d0, 0, 10, contracts.ExitHoldingPeriod)
	assert.Error(t, err, "exit must follow entry")

	_, err = sim.Sell("ZZZ", d0.AddDate(0, 0, 1), 1, 10, contracts.ExitHoldingPeriod)
	assert.Error(t, err)
}

func TestSimulator_Commission(t *testing.T) {
	sim := NewSimulator(1010, 0.01, 0)
	d0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sim.Buy("AAA", d0, 0, 100, 1010, 1))
	pos, ok := sim.Position("AAA")
	require.True(t, ok)
	assert.InDelta(t, 10.0, pos.Shares, 1e-9)
	assert.InDelta(t, 10.0, pos.Commission, 1e-9)
	assert.InDelta(t, 0.0, sim.Cash(), 1e-9)

	trade, err := sim.Sell("AAA", d0.AddDate(0, 0, 1), 1, 100, contracts.ExitHoldingPeriod)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, trade.Commission, 1e-9)
	assert.InDelta(t, -20.0, trade.PnL, 1e-9)
}
