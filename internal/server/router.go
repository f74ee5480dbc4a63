package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aduersarius/polybet-sub009/internal/handler"
	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

// NewRouter 只暴露 /health 和 /metrics
func NewRouter(state *health.State, httpMetrics *monitor.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}

	r.GET("/health", handler.NewHealthHandler(state).Check)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return r
}
