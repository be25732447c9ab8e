package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LENAX/content-pipeline/pkg/api"
	"github.com/LENAX/content-pipeline/pkg/config"
	"github.com/LENAX/content-pipeline/pkg/core/engine"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/engine.yaml", "引擎配置文件路径")
	host := flag.String("host", "", "监听地址（覆盖配置文件）")
	port := flag.Int("port", 0, "监听端口（覆盖配置文件）")
	flag.Parse()

	log.Printf("Content Pipeline Server v%s (commit=%s, built=%s)", Version, GitCommit, BuildTime)
	log.Printf("配置文件: %s", *configPath)

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *host != "" {
		cfg.Pipeline.Server.Host = *host
	}
	if *port > 0 {
		cfg.Pipeline.Server.Port = *port
	}

	// 2. 构建Engine
	eng, err := engine.NewEngineBuilder(*configPath).WithConfig(cfg).Build()
	if err != nil {
		log.Fatalf("创建Engine失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 启动Engine（恢复上次中断的实例并启动定时任务）
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("启动Engine失败: %v", err)
	}

	// 4. 启动API服务器，阻塞直到收到中断信号
	apiServer := api.NewAPIServer(eng, api.ServerConfigFrom(cfg), Version)
	log.Printf("✅ Content Pipeline Server started on %s", apiServer.Addr())
	if err := apiServer.Run(ctx, cfg.Pipeline.Server.ShutdownTimeout); err != nil {
		log.Printf("API服务器错误: %v", err)
	}

	// 5. 优雅关闭
	log.Println("正在关闭服务...")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.Server.ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.Printf("停止Engine时出错: %v", err)
	}
	log.Println("✅ 服务已停止")
}
