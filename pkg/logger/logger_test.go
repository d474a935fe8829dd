package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())
	return entry
}

func TestNewWithWriter_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantLevel zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(&config.Config{Env: "development", LogLevel: tt.level, LogFormat: "json"}, &buf)
			require.NotNil(t, log)
			assert.Equal(t, tt.wantLevel, log.Level())
			assert.Equal(t, tt.level == "debug", log.DebugEnabled())
		})
	}
}

func TestLevelIsPerLogger(t *testing.T) {
	var quiet, loud bytes.Buffer
	q := NewWithWriter(&config.Config{LogLevel: "error", LogFormat: "json"}, &quiet)
	l := NewWithWriter(&config.Config{LogLevel: "debug", LogFormat: "json"}, &loud)

	q.Info("dropped")
	l.Debug("kept")

	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "kept")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"trace", zerolog.TraceLevel},
		{"warning", zerolog.WarnLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestJSONOutputCarriesServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "staging", LogLevel: "debug", LogFormat: "json"}, &buf)

	log.Info("aggregation completed")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "aggregation completed", entry["message"])
	assert.Equal(t, "screener", entry["service"])
	assert.Equal(t, "staging", entry["env"])
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "development", LogLevel: "info", LogFormat: "console"}, &buf)

	log.Info("backtest started")

	assert.True(t, strings.Contains(buf.String(), "backtest started"))
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithFields(map[string]interface{}{
		"model":  "rsi_reversal",
		"ticker": "AAA",
		"score":  72.5,
	}).Warn("model invocation failed")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "rsi_reversal", entry["model"])
	assert.Equal(t, "AAA", entry["ticker"])
	assert.Equal(t, 72.5, entry["score"])
	assert.Equal(t, "warn", entry["level"])
}

func TestWithFieldAndError(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithField("run_id", "bt_1").WithError(errors.New("store unavailable")).Error("backtest failed")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "bt_1", entry["run_id"])
	assert.Equal(t, "store unavailable", entry["error"])
}

func TestWithDuration(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithDuration("duration", 1500*time.Millisecond).Info("backtest completed")
	entry := decodeLine(t, &buf)
	assert.Equal(t, 1500.0, entry["duration"])
}

func TestFormattedMethods(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.Infof("models analyzed: %d", 7)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "models analyzed: 7", entry["message"])
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	// Must not panic or write anywhere
	log.WithField("k", "v").Info("discarded")
	assert.False(t, log.DebugEnabled())
}
