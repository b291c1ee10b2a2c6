package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(h *HealthHandler) (*httptest.ResponseRecorder, map[string]any) {
	router := gin.New()
	router.GET("/health", h.Health)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealthHandler_Health(t *testing.T) {
	ok := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantState  string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"all pass", []HealthCheck{{Name: "database", Check: ok}}, http.StatusOK, "healthy"},
		{
			name:       "optional failure degrades",
			checks:     []HealthCheck{{Name: "database", Check: ok}, {Name: "redis", Check: failing, Optional: true}},
			wantStatus: http.StatusOK,
			wantState:  "degraded",
		},
		{
			name:       "required failure",
			checks:     []HealthCheck{{Name: "database", Check: failing}, {Name: "redis", Check: failing, Optional: true}},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serveHealth(NewHealthHandler("settlement-engine", "test", tt.checks...))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantState, body["status"])
			assert.NotEmpty(t, body["time"])
		})
	}
}

func TestHealthHandler_CheckResults(t *testing.T) {
	h := NewHealthHandler("settlement-engine", "test",
		HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }, Optional: true},
	)
	_, body := serveHealth(h)

	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "degraded", checks["redis"])
}

func TestHealthHandler_CheckHasDeadline(t *testing.T) {
	var hasDeadline bool
	h := NewHealthHandler("settlement-engine", "test", HealthCheck{
		Name: "database",
		Check: func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		},
	})
	serveHealth(h)
	assert.True(t, hasDeadline)
}

func TestHealthHandler_Info(t *testing.T) {
	h := NewHealthHandler("settlement-engine", "1.2.3")
	router := gin.New()
	router.GET("/info", h.Info)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info InfoResponse
	decodeData(t, w, &info)
	assert.Equal(t, "settlement-engine", info.Name)
	assert.Equal(t, "1.2.3", info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
