// Package server 提供只读的运行状态 HTTP 服务，随运行一起启动，
// 用于外部观察下载进度。端口为 0 时不启动。
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/handler"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/service"

	"github.com/gin-gonic/gin"
)

// Server 表示状态 HTTP 服务器
type Server struct {
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server
}

// New 创建一个新的 Server 实例
func New(port int, provider handler.RunStateProvider, history *service.HistoryService, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		Logger: log,
		gin:    router,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		},
	}

	s.setupRoutes(provider, history)
	return s
}

// Start 启动服务器，在独立协程中阻塞运行
func (s *Server) Start() error {
	s.Logger.Infof("在 %s 启动状态服务", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes(provider handler.RunStateProvider, history *service.HistoryService) {
	statusHandler := handler.NewStatusHandler(provider, history)

	s.gin.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.gin.Group("/api")
	{
		api.GET("/status", statusHandler.GetStatus)
		api.GET("/history", statusHandler.GetHistory)
	}
}
