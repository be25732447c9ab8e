package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/handler"
	"github.com/LENAX/content-pipeline/pkg/api/middleware"
)

// RouterOptions 路由配置
type RouterOptions struct {
	Version          string
	StreamBufferSize int // 每个WebSocket连接的事件缓冲容量
}

// SetupRouter 设置路由
func SetupRouter(p handler.Pipeline, opts RouterOptions) *gin.Engine {
	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	workflowHandler := handler.NewWorkflowHandler(p)
	logsHandler := handler.NewLogsHandler(p)
	streamHandler := handler.NewStreamHandler(p, opts.StreamBufferSize)
	healthHandler := handler.NewHealthHandler(p, opts.Version)
	schedulerHandler := handler.NewSchedulerHandler(p)
	statsHandler := handler.NewStatsHandler(p)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowHandler.List)
			workflows.POST("", workflowHandler.Start)
			workflows.POST("/batch", workflowHandler.Batch)
			workflows.GET("/graph", workflowHandler.Graph)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.POST("/:id/review", workflowHandler.Review)
			workflows.GET("/:id/logs", workflowHandler.Logs)
		}

		scheduler := v1.Group("/scheduler")
		{
			scheduler.GET("/status", schedulerHandler.Status)
			scheduler.GET("/jobs", schedulerHandler.Jobs)
			scheduler.POST("/jobs/:name/run", schedulerHandler.Run)
			scheduler.GET("/executions", schedulerHandler.Executions)
		}

		v1.GET("/stats/overview", statsHandler.Overview)
		v1.GET("/logs", logsHandler.List)
		v1.GET("/events", streamHandler.Stream)
	}

	return router
}
