package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(l *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(GinRequestIDKey, "req-42")
		c.Next()
	})
	router.Use(Recovery(l), GinMiddleware(l, "/health"))
	router.GET("/settlements/:id", func(c *gin.Context) {
		GetGinLogger(c).Info("handler")
		FromContext(c.Request.Context()).Info("from request context")
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/boom", func(c *gin.Context) { panic("ledger gone") })
	return router
}

func serve(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestGinMiddleware(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	w := serve(router, "/settlements/abc?page=2")
	assert.Equal(t, http.StatusOK, w.Code)

	entries := recorded.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "/settlements/:id", fields["route"])
	assert.Equal(t, "page=2", fields["query"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])

	assert.Equal(t, 1, recorded.FilterMessage("handler").Len())
	ctxEntries := recorded.FilterMessage("from request context").All()
	require.Len(t, ctxEntries, 1)
	assert.Equal(t, "req-42", ctxEntries[0].ContextMap()["request_id"])
}

func TestGinMiddleware_Levels(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	serve(router, "/missing")
	entries := recorded.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestGinMiddleware_SkipsHealthyProbes(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	serve(router, "/health")
	assert.Zero(t, recorded.FilterMessage("HTTP Request").Len())
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	router := newTestRouter(zap.New(core))

	w := serve(router, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	require.Equal(t, 1, recorded.FilterMessage("Panic recovered").Len())
	assert.Equal(t, "ledger gone", recorded.FilterMessage("Panic recovered").All()[0].ContextMap()["error"])
}

func TestGetGinLogger_NotSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
