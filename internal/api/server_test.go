package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/pkg/config"
	"github.com/wonny/screener/pkg/logger"
)

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(&config.Config{}))

	l := NewLimiter(&config.Config{API: config.APIConfig{RateLimit: 2}})
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())

	l = NewLimiter(&config.Config{API: config.APIConfig{RateLimit: 5, RateBurst: 10}})
	assert.Equal(t, 10, l.Burst())
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(&config.Config{Env: "development"}, logger.NewNop(), newTestRouter(t, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
