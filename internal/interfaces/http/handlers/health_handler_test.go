package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinsight/vinsight/pkg/types/common"
)

func newHealthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func TestHealthHandler_Liveness(t *testing.T) {
	r := newHealthRouter(NewHealthHandler("1.2.3"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1.2.3")
}

func TestHealthHandler_Readiness_NoCheckers(t *testing.T) {
	r := newHealthRouter(NewHealthHandler("dev"))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_Readiness_AllHealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckerFunc{ComponentName: "postgres", Fn: func(context.Context) error { return nil }},
		CheckerFunc{ComponentName: "redis", Fn: func(context.Context) error { return nil }},
	)
	r := newHealthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status     common.HealthStatus      `json:"status"`
		Components []common.ComponentHealth `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, common.HealthUp, resp.Status)
	assert.Len(t, resp.Components, 2)
}

func TestHealthHandler_Readiness_ComponentDown(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckerFunc{ComponentName: "postgres", Fn: func(context.Context) error { return nil }},
		CheckerFunc{ComponentName: "kafka", Fn: func(context.Context) error {
			return assert.AnError
		}},
	)
	r := newHealthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "kafka")
}
