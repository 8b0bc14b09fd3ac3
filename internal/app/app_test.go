package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/config"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("CHECKOUT_HTTP_PORT", "18004")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewApp_MemoryStore(t *testing.T) {
	a, err := NewApp(memoryConfig(t), logger.Discard())
	require.NoError(t, err)

	assert.Nil(t, a.pool)
	assert.Nil(t, a.redis)
	assert.Nil(t, a.producer)
	assert.Equal(t, ":18004", a.httpServer.Addr)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil)
	rec = httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, a.manager.Len())

	require.NoError(t, a.Shutdown())
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := NewApp(memoryConfig(t), logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
