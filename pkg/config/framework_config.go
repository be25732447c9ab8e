package config

import (
	"time"
)

// JobConfig 定时批量任务配置
type JobConfig struct {
	Name   string `yaml:"name"`
	Cron   string `yaml:"cron"` // 6段表达式（含秒）
	UserID string `yaml:"user_id"`
	Count  int    `yaml:"count"`
}

// EngineConfig 内容流水线配置（对外导出）
type EngineConfig struct {
	Pipeline struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Server struct {
			Host            string        `yaml:"host"`
			Port            int           `yaml:"port"`
			ReadTimeout     time.Duration `yaml:"read_timeout"`
			WriteTimeout    time.Duration `yaml:"write_timeout"`
			ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		} `yaml:"server"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"` // sqlite / mysql / postgres / memory
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
			} `yaml:"database"`
			Cache struct {
				Enabled       bool          `yaml:"enabled"`
				DefaultTTL    time.Duration `yaml:"default_ttl"`
				CleanInterval time.Duration `yaml:"clean_interval"`
			} `yaml:"cache"`
		} `yaml:"storage"`
		Execution struct {
			DefaultStepTimeout time.Duration `yaml:"default_step_timeout"`
			CreateTimeout      time.Duration `yaml:"create_timeout"`
			PublishTimeout     time.Duration `yaml:"publish_timeout"`
			SinkTimeout        time.Duration `yaml:"sink_timeout"`
			BatchConcurrency   int           `yaml:"batch_concurrency"`
			MaxBatchSize       int           `yaml:"max_batch_size"`
			RecentTopicWindow  int           `yaml:"recent_topic_window"`
			TopicCount         int           `yaml:"topic_count"`
			Retry              struct {
				MaxAttempts int           `yaml:"max_attempts"`
				Delay       time.Duration `yaml:"delay"`
				MaxDelay    time.Duration `yaml:"max_delay"`
			} `yaml:"retry"`
		} `yaml:"execution"`
		Collaborators struct {
			Trending struct {
				WeiboURL           string        `yaml:"weibo_url"`
				BoardURL           string        `yaml:"board_url"`
				BoardItemSelector  string        `yaml:"board_item_selector"`
				BoardTitleSelector string        `yaml:"board_title_selector"`
				BoardScoreSelector string        `yaml:"board_score_selector"`
				Timeout            time.Duration `yaml:"timeout"`
			} `yaml:"trending"`
			LLM struct {
				APIKey      string        `yaml:"api_key"`
				BaseURL     string        `yaml:"base_url"`
				Model       string        `yaml:"model"`
				Temperature float32       `yaml:"temperature"`
				MaxTokens   int           `yaml:"max_tokens"`
				Timeout     time.Duration `yaml:"timeout"`
			} `yaml:"llm"`
			Image struct {
				Enabled bool   `yaml:"enabled"`
				Model   string `yaml:"model"`
				Size    string `yaml:"size"`
			} `yaml:"image"`
			Publisher struct {
				Type    string        `yaml:"type"` // mcp / dryrun
				MCPURL  string        `yaml:"mcp_url"`
				Timeout time.Duration `yaml:"timeout"`
			} `yaml:"publisher"`
			Compliance struct {
				TopicBlacklist   []string `yaml:"topic_blacklist"`
				ContentBlacklist []string `yaml:"content_blacklist"`
				MinBodyLength    int      `yaml:"min_body_length"`
				Disclaimers      []string `yaml:"disclaimers"`
			} `yaml:"compliance"`
		} `yaml:"collaborators"`
		Plugins struct {
			Feishu struct {
				Enabled    bool   `yaml:"enabled"`
				WebhookURL string `yaml:"webhook_url"`
			} `yaml:"feishu"`
			File struct {
				Enabled bool   `yaml:"enabled"`
				Dir     string `yaml:"dir"`
			} `yaml:"file"`
			Email struct {
				Enabled  bool   `yaml:"enabled"`
				SMTPHost string `yaml:"smtp_host"`
				SMTPPort string `yaml:"smtp_port"`
				Username string `yaml:"username"`
				Password string `yaml:"password"`
				From     string `yaml:"from"`
				To       string `yaml:"to"`

				// ReviewURL 审核页地址前缀，邮件中拼接实例ID作为审核链接
				ReviewURL string `yaml:"review_url"`
			} `yaml:"email"`
			Telegram struct {
				Enabled bool   `yaml:"enabled"`
				Token   string `yaml:"token"`
				ChatID  int64  `yaml:"chat_id"`
			} `yaml:"telegram"`
			Discord struct {
				Enabled   bool   `yaml:"enabled"`
				Token     string `yaml:"token"`
				ChannelID string `yaml:"channel_id"`
			} `yaml:"discord"`
		} `yaml:"plugins"`
		Scheduler struct {
			Enabled bool        `yaml:"enabled"`
			Jobs    []JobConfig `yaml:"jobs"`
		} `yaml:"scheduler"`
		Realtime struct {
			BufferSize int `yaml:"buffer_size"`
		} `yaml:"realtime"`
	} `yaml:"content-pipeline"`
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.Pipeline.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.Pipeline.Storage.Database.DSN
}

// GetBatchConcurrency 获取批量执行并发数
func (c *EngineConfig) GetBatchConcurrency() int {
	concurrency := c.Pipeline.Execution.BatchConcurrency
	if concurrency <= 0 {
		return 5 // 默认值
	}
	return concurrency
}

// GetDefaultStepTimeout 获取默认步骤超时时间
func (c *EngineConfig) GetDefaultStepTimeout() time.Duration {
	timeout := c.Pipeline.Execution.DefaultStepTimeout
	if timeout <= 0 {
		return 60 * time.Second // 默认值
	}
	return timeout
}

// GetListenAddr 获取HTTP监听地址
func (c *EngineConfig) GetListenAddr() (string, int) {
	return c.Pipeline.Server.Host, c.Pipeline.Server.Port
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	p := &c.Pipeline

	// General默认值
	if p.General.InstanceName == "" {
		p.General.InstanceName = "content-pipeline"
	}
	if p.General.LogLevel == "" {
		p.General.LogLevel = "info"
	}
	if p.General.Env == "" {
		p.General.Env = "dev"
	}

	// Server默认值
	if p.Server.Host == "" {
		p.Server.Host = "0.0.0.0"
	}
	if p.Server.Port <= 0 {
		p.Server.Port = 8080
	}
	if p.Server.ReadTimeout <= 0 {
		p.Server.ReadTimeout = 30 * time.Second
	}
	if p.Server.WriteTimeout <= 0 {
		p.Server.WriteTimeout = 30 * time.Second
	}
	if p.Server.ShutdownTimeout <= 0 {
		p.Server.ShutdownTimeout = 10 * time.Second
	}

	// Database默认值
	if p.Storage.Database.Type == "" {
		p.Storage.Database.Type = "sqlite"
	}
	if p.Storage.Database.DSN == "" && p.Storage.Database.Type == "sqlite" {
		p.Storage.Database.DSN = "./data/content-pipeline.db"
	}
	if p.Storage.Database.MaxOpenConns <= 0 {
		p.Storage.Database.MaxOpenConns = 10
	}
	if p.Storage.Database.MaxIdleConns <= 0 {
		p.Storage.Database.MaxIdleConns = 5
	}
	if p.Storage.Database.ConnMaxLifetime <= 0 {
		p.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}

	// Cache默认值
	if p.Storage.Cache.DefaultTTL <= 0 {
		p.Storage.Cache.DefaultTTL = 10 * time.Minute
	}
	if p.Storage.Cache.CleanInterval <= 0 {
		p.Storage.Cache.CleanInterval = 5 * time.Minute
	}

	// Execution默认值
	if p.Execution.DefaultStepTimeout <= 0 {
		p.Execution.DefaultStepTimeout = 60 * time.Second
	}
	if p.Execution.CreateTimeout <= 0 {
		p.Execution.CreateTimeout = 90 * time.Second
	}
	if p.Execution.PublishTimeout <= 0 {
		p.Execution.PublishTimeout = 3 * time.Minute
	}
	if p.Execution.SinkTimeout <= 0 {
		p.Execution.SinkTimeout = 5 * time.Second
	}
	if p.Execution.BatchConcurrency <= 0 {
		p.Execution.BatchConcurrency = 5
	}
	if p.Execution.MaxBatchSize <= 0 {
		p.Execution.MaxBatchSize = 50
	}
	if p.Execution.RecentTopicWindow <= 0 {
		p.Execution.RecentTopicWindow = 20
	}
	if p.Execution.TopicCount <= 0 {
		p.Execution.TopicCount = 15
	}

	// Retry默认值
	if p.Execution.Retry.MaxAttempts <= 0 {
		p.Execution.Retry.MaxAttempts = 3
	}
	if p.Execution.Retry.Delay <= 0 {
		p.Execution.Retry.Delay = 1 * time.Second
	}
	if p.Execution.Retry.MaxDelay <= 0 {
		p.Execution.Retry.MaxDelay = 10 * time.Second
	}

	// 协作方默认值
	tr := &p.Collaborators.Trending
	if tr.WeiboURL == "" {
		tr.WeiboURL = "https://weibo.com/ajax/side/hotSearch"
	}
	if tr.BoardURL == "" {
		tr.BoardURL = "https://top.baidu.com/board?tab=realtime"
	}
	if tr.BoardItemSelector == "" {
		tr.BoardItemSelector = "div.category-wrap_iQLoo"
	}
	if tr.BoardTitleSelector == "" {
		tr.BoardTitleSelector = "div.c-single-text-ellipsis"
	}
	if tr.BoardScoreSelector == "" {
		tr.BoardScoreSelector = "div.hot-index_1Bl1a"
	}
	if tr.Timeout <= 0 {
		tr.Timeout = 10 * time.Second
	}

	llm := &p.Collaborators.LLM
	if llm.BaseURL == "" {
		llm.BaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}
	if llm.Temperature <= 0 {
		llm.Temperature = 0.7
	}
	if llm.MaxTokens <= 0 {
		llm.MaxTokens = 2000
	}
	if llm.Timeout <= 0 {
		llm.Timeout = 60 * time.Second
	}

	if p.Collaborators.Image.Size == "" {
		p.Collaborators.Image.Size = "1024x1024"
	}

	pub := &p.Collaborators.Publisher
	if pub.Type == "" {
		pub.Type = "dryrun"
	}
	if pub.MCPURL == "" {
		pub.MCPURL = "http://localhost:18060/mcp"
	}
	if pub.Timeout <= 0 {
		pub.Timeout = 60 * time.Second
	}

	comp := &p.Collaborators.Compliance
	if len(comp.TopicBlacklist) == 0 {
		comp.TopicBlacklist = []string{"政治", "敏感", "非法", "暴恐", "色情"}
	}
	if len(comp.ContentBlacklist) == 0 {
		comp.ContentBlacklist = []string{"政治", "敏感", "非法", "暴恐", "色情", "赌博", "毒品"}
	}
	if comp.MinBodyLength <= 0 {
		comp.MinBodyLength = 50
	}
	if len(comp.Disclaimers) == 0 {
		comp.Disclaimers = []string{"理财有风险", "投资需谨慎"}
	}

	if p.Plugins.File.Dir == "" {
		p.Plugins.File.Dir = "./data/notifications"
	}

	if p.Realtime.BufferSize <= 0 {
		p.Realtime.BufferSize = 256
	}
}
