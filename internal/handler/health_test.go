package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data health.Snapshot `json:"data"`
}

func serve(t *testing.T, state *health.State) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := gin.New()
	r.GET("/health", NewHealthHandler(state).Check)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	state := health.NewState(time.Minute, 5)
	state.RecordAttempt()

	w, body := serve(t, state)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, errno.OK.Code, body.Code)
	assert.True(t, body.Data.Healthy)
	assert.Equal(t, uint64(1), body.Data.Attempts)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	state := health.NewState(time.Minute, 2)
	state.CycleFailed()
	state.CycleFailed()

	w, body := serve(t, state)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errno.ErrServiceUnhealthy.Code, body.Code)
	assert.False(t, body.Data.Healthy)
	assert.Equal(t, 2, body.Data.ConsecutiveFailures)
}
