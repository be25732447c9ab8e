package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LENAX/content-pipeline/pkg/api"
	"github.com/LENAX/content-pipeline/pkg/cli/output"
	"github.com/LENAX/content-pipeline/pkg/config"
	"github.com/LENAX/content-pipeline/pkg/core/engine"
)

var (
	serverPort int
	configPath string
	serverHost string
)

// defaultConfigPaths 未指定 --config 时依次尝试的路径
var defaultConfigPaths = []string{
	"./configs/engine.yaml",
	"./config/engine.yaml",
	"./engine.yaml",
}

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理Content Pipeline HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动Content Pipeline HTTP API服务。

示例：
  # 使用默认配置启动
  content-pipeline server start

  # 指定端口启动
  content-pipeline server start --port 8080

  # 指定配置文件启动
  content-pipeline server start --config ./configs/engine.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath(configPath)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Info("使用配置文件: %s", path)

		cfg, err := config.Load(path)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Pipeline.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Pipeline.Server.Port = serverPort
		}

		eng, err := engine.NewEngineBuilder(path).WithConfig(cfg).Build()
		if err != nil {
			output.Error("创建Engine失败: %v", err)
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := eng.Start(ctx); err != nil {
			output.Error("启动Engine失败: %v", err)
			return err
		}

		apiServer := api.NewAPIServer(eng, api.ServerConfigFrom(cfg), Version)
		output.Success("Content Pipeline Server started on %s", apiServer.Addr())

		serveErr := apiServer.Run(ctx, cfg.Pipeline.Server.ShutdownTimeout)
		output.Info("正在关闭服务...")

		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.Server.ShutdownTimeout)
		defer cancel()
		if err := eng.Stop(stopCtx); err != nil {
			output.Warning("停止Engine时出错: %v", err)
		}
		if serveErr != nil {
			output.Error("API服务器错误: %v", serveErr)
			return serveErr
		}
		output.Success("服务已停止")
		return nil
	},
}

// resolveConfigPath 确定配置文件路径
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("未找到配置文件，请使用 --config 指定")
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "监听端口（覆盖配置文件）")
	serverStartCmd.Flags().StringVarP(&serverHost, "host", "H", "0.0.0.0", "监听地址（覆盖配置文件）")
	serverStartCmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	serverCmd.AddCommand(serverStartCmd)
}
