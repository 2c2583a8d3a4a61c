package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/api/internal/config"
	"chatdeck/api/internal/handlers"
)

func TestNewHTTPServerAppliesHTTPConfig(t *testing.T) {
	cfg := &config.AppConfig{
		Environment: "test",
		HTTP: config.HTTPConfig{
			Host:         "127.0.0.1",
			Port:         9191,
			ReadTimeout:  7 * time.Second,
			WriteTimeout: 21 * time.Second,
			IdleTimeout:  42 * time.Second,
		},
	}

	srv := NewHTTPServer(cfg, zerolog.Nop(), handlers.HandlerSet{})
	require.NotNil(t, srv)

	assert.Equal(t, "127.0.0.1:9191", srv.server.Addr)
	assert.Equal(t, 7*time.Second, srv.server.ReadTimeout)
	assert.Equal(t, 21*time.Second, srv.server.WriteTimeout)
	assert.Equal(t, 42*time.Second, srv.server.IdleTimeout)
}

func TestNewHTTPServerRoutesUnknownPathTo404(t *testing.T) {
	srv := NewHTTPServer(&config.AppConfig{Environment: "test"}, zerolog.Nop(), handlers.HandlerSet{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	srv.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
