package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// App 健康检查 / 指标 HTTP 服务
type App struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func New(port string, handler *gin.Engine, logger *zap.Logger) *App {
	return &App{
		httpServer: &http.Server{
			Addr:    ":" + port,
			Handler: handler,
		},
		logger: logger,
	}
}

// Start 后台监听; 监听失败只记录日志，归集不受影响
func (a *App) Start() {
	go func() {
		a.logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP Server failure", zap.Error(err))
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}
