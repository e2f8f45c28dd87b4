package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_Health(t *testing.T) {
	ok := func(context.Context) error { return nil }

	t.Run("healthy", func(t *testing.T) {
		h := NewSystemHandler("mxi-presale", "test", map[string]HealthCheck{"database": ok, "redis": ok})
		w := perform(anonymous, http.MethodGet, "/health", "/health", "", h.Health)

		require.Equal(t, http.StatusOK, w.Code)
		var got HealthResponse
		decodeData(t, w, &got)
		assert.Equal(t, "healthy", got.Status)
		assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, got.Components)
	})

	t.Run("one failing component", func(t *testing.T) {
		h := NewSystemHandler("mxi-presale", "test", map[string]HealthCheck{
			"database": ok,
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		w := perform(anonymous, http.MethodGet, "/health", "/health", "", h.Health)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decode(t, w)
		assert.False(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "unhealthy", data["status"])
		assert.Equal(t, "error", data["components"].(map[string]any)["redis"])
	})

	t.Run("no checks", func(t *testing.T) {
		h := NewSystemHandler("mxi-presale", "test", nil)
		w := perform(anonymous, http.MethodGet, "/health", "/health", "", h.Health)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSystemHandler_Info(t *testing.T) {
	h := NewSystemHandler("mxi-presale", "1.2.3", nil)
	w := perform(anonymous, http.MethodGet, "/system/info", "/system/info", "", h.GetSystemInfo)

	require.Equal(t, http.StatusOK, w.Code)
	var got SystemInfoResponse
	decodeData(t, w, &got)
	assert.Equal(t, "mxi-presale", got.Name)
	assert.Equal(t, "1.2.3", got.Version)
	assert.NotEmpty(t, got.GoVersion)
}
