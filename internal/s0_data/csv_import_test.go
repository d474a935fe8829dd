package s0_data

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBarsCSV(t *testing.T) {
	in := `ticker,date,open,high,low,close,volume
005930,2024-01-02,100,110,95,105,1000
005930,2024-01-03,105,112,101,110,1200
000660, 2024-01-02,50,52,49,51,300
`
	bars, err := ReadBarsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars["005930"], 2)
	require.Len(t, bars["000660"], 1)

	b := bars["005930"][1]
	assert.Equal(t, "2024-01-03", b.Date.Format("2006-01-02"))
	assert.Equal(t, 110.0, b.Close)
	assert.Equal(t, int64(1200), b.Volume)
}

func TestReadBarsCSV_ColumnOrderIsFree(t *testing.T) {
	in := "close,volume,date,ticker,open,high,low\n10,5,2024-01-02,AAA,9,11,8\n"
	bars, err := ReadBarsCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 10.0, bars["AAA"][0].Close)
	assert.Equal(t, 9.0, bars["AAA"][0].Open)
}

func TestReadBarsCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty csv"},
		{"missing column", "ticker,date,open,high,low,close\n", "missing column \"volume\""},
		{"bad date", "ticker,date,open,high,low,close,volume\nA,01/02/2024,1,1,1,1,1\n", "line 2: date"},
		{"bad price", "ticker,date,open,high,low,close,volume\nA,2024-01-02,x,1,1,1,1\n", "line 2: open"},
		{"non-positive close", "ticker,date,open,high,low,close,volume\nA,2024-01-02,1,1,1,0,1\n", "close must be positive"},
		{"blank ticker", "ticker,date,open,high,low,close,volume\n,2024-01-02,1,1,1,1,1\n", "ticker is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBarsCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadFundamentalsCSV(t *testing.T) {
	in := `ticker,date,per,pbr,roe
AAA,2023-12-31,8.5,,15
`
	snaps, err := ReadFundamentalsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, snaps["AAA"], 1)

	f := snaps["AAA"][0]
	require.NotNil(t, f.PER)
	assert.Equal(t, 8.5, *f.PER)
	assert.Nil(t, f.PBR)
	assert.Nil(t, f.DebtRatio)
	require.NotNil(t, f.ROE)
	assert.Equal(t, 15.0, *f.ROE)
}
