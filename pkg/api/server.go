package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/content-pipeline/pkg/api/handler"
	"github.com/LENAX/content-pipeline/pkg/config"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host             string        // 监听地址
	Port             int           // 监听端口
	ReadTimeout      time.Duration // 读取超时
	WriteTimeout     time.Duration // 写入超时
	StreamBufferSize int           // WebSocket事件缓冲容量
	Debug            bool          // gin调试模式
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ServerConfigFrom 从引擎配置生成服务器配置
func ServerConfigFrom(cfg *config.EngineConfig) ServerConfig {
	p := &cfg.Pipeline
	return ServerConfig{
		Host:             p.Server.Host,
		Port:             p.Server.Port,
		ReadTimeout:      p.Server.ReadTimeout,
		WriteTimeout:     p.Server.WriteTimeout,
		StreamBufferSize: p.Realtime.BufferSize,
		Debug:            p.General.LogLevel == "debug",
	}
}

// APIServer HTTP API服务器
type APIServer struct {
	pipeline   handler.Pipeline
	httpServer *http.Server
	config     ServerConfig
	version    string
}

// NewAPIServer 创建API服务器
func NewAPIServer(p handler.Pipeline, config ServerConfig, version string) *APIServer {
	return &APIServer{
		pipeline: p,
		config:   config,
		version:  version,
	}
}

// Handler 构建路由
func (s *APIServer) Handler() http.Handler {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return SetupRouter(s.pipeline, RouterOptions{
		Version:          s.version,
		StreamBufferSize: s.config.StreamBufferSize,
	})
}

// Start 启动服务器，阻塞直到Shutdown
func (s *APIServer) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Printf("🚀 Content Pipeline API Server starting on %s", s.Addr())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Println("🛑 Shutting down API Server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("✅ API Server stopped")
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Run 启动服务器，ctx 取消后在 shutdownTimeout 内优雅关闭
func (s *APIServer) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
