package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LENAX/content-pipeline/pkg/cli/pipeline"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "content-pipeline",
	Short: "Content Pipeline CLI - 内容流水线命令行工具",
	Long: `Content Pipeline CLI 用于驱动"热点调研 → 合规 → 创作 → 审核 → 发布"内容流水线。

支持的功能：
  - 启动单个实例或批量实例
  - 查看实例状态、提交审核结论
  - 查询执行记录、订阅实时事件
  - 启动HTTP API服务

使用示例：
  # 同步执行一个实例直到等待审核
  content-pipeline workflow start --user alice --wait

  # 审核通过
  content-pipeline workflow review <workflow-id> --decision approved

  # 启动HTTP服务
  content-pipeline server start --config ./configs/engine.yaml`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Root 返回根命令
func Root() *cobra.Command {
	return rootCmd
}

func newClient() *pipeline.Client {
	return pipeline.New(serverURL)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Content Pipeline服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}
