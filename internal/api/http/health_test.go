package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHealth() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler("test", "1.1.1")
	h.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.FixedZone("CET", 3600)) }

	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func TestHealthCheck(t *testing.T) {
	r := setupHealth()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Environment)
	assert.Equal(t, "1.1.1", resp.Version)
	assert.Equal(t, time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC), resp.Timestamp)
}

func TestStatus(t *testing.T) {
	r := setupHealth()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Bienvenue sur l'API CalyBase", body["message"])
	assert.Equal(t, "1.1.1", body["version"])
}

func TestTestDelete(t *testing.T) {
	r := setupHealth()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/test-delete", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"DELETE method is working"}`, rr.Body.String())
}
