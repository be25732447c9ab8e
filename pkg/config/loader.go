package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// 环境变量名
const (
	EnvArkAPIKey        = "ARK_API_KEY"
	EnvArkBaseURL       = "ARK_BASE_URL"
	EnvArkModelEndpoint = "ARK_MODEL_ENDPOINT"
	EnvArkImageModel    = "ARK_IMAGE_MODEL"
	EnvXHSMCPURL        = "XHS_MCP_URL"
	EnvDBType           = "PIPELINE_DB_TYPE"
	EnvDBDSN            = "PIPELINE_DB_DSN"
)

// Load 加载配置文件（对外导出）
// 文件不存在时返回默认配置；随后应用环境变量覆盖和默认值
func Load(path string) (*EngineConfig, error) {
	var cfg EngineConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// 使用默认配置
	default:
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse 从YAML内容解析配置
func Parse(data []byte) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv 使用环境变量覆盖敏感配置
func (c *EngineConfig) ApplyEnv() {
	setFromEnv(EnvArkAPIKey, &c.Pipeline.Collaborators.LLM.APIKey)
	setFromEnv(EnvArkBaseURL, &c.Pipeline.Collaborators.LLM.BaseURL)
	setFromEnv(EnvArkModelEndpoint, &c.Pipeline.Collaborators.LLM.Model)
	setFromEnv(EnvArkImageModel, &c.Pipeline.Collaborators.Image.Model)
	setFromEnv(EnvXHSMCPURL, &c.Pipeline.Collaborators.Publisher.MCPURL)
	setFromEnv(EnvDBType, &c.Pipeline.Storage.Database.Type)
	setFromEnv(EnvDBDSN, &c.Pipeline.Storage.Database.DSN)
}

func setFromEnv(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*target = strings.TrimSpace(v)
	}
}

// Validate 校验配置
func (c *EngineConfig) Validate() error {
	p := &c.Pipeline

	switch p.Storage.Database.Type {
	case "sqlite", "sqlite3", "mysql", "postgres", "postgresql", "memory":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", p.Storage.Database.Type)
	}
	if p.Storage.Database.Type != "memory" && p.Storage.Database.DSN == "" {
		return fmt.Errorf("数据库DSN不能为空")
	}

	if p.Server.Port <= 0 || p.Server.Port > 65535 {
		return fmt.Errorf("无效的端口: %d", p.Server.Port)
	}

	switch p.Collaborators.Publisher.Type {
	case "mcp", "dryrun":
	default:
		return fmt.Errorf("不支持的发布类型: %s", p.Collaborators.Publisher.Type)
	}

	if p.Collaborators.Image.Enabled && p.Collaborators.Image.Model == "" {
		return fmt.Errorf("启用配图时必须配置图片模型")
	}

	if p.Plugins.Telegram.Enabled && (p.Plugins.Telegram.Token == "" || p.Plugins.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram插件需要token和chat_id")
	}
	if p.Plugins.Discord.Enabled && (p.Plugins.Discord.Token == "" || p.Plugins.Discord.ChannelID == "") {
		return fmt.Errorf("discord插件需要token和channel_id")
	}
	if p.Plugins.Feishu.Enabled && p.Plugins.Feishu.WebhookURL == "" {
		return fmt.Errorf("feishu插件需要webhook_url")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for i, job := range p.Scheduler.Jobs {
		if job.Name == "" {
			return fmt.Errorf("第%d个定时任务缺少名称", i+1)
		}
		if _, err := parser.Parse(job.Cron); err != nil {
			return fmt.Errorf("定时任务 %s 的Cron表达式无效: %w", job.Name, err)
		}
		if job.Count <= 0 || job.Count > p.Execution.MaxBatchSize {
			return fmt.Errorf("定时任务 %s 的数量必须在1到%d之间", job.Name, p.Execution.MaxBatchSize)
		}
	}
	return nil
}
