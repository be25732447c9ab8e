package engine

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	internalstorage "github.com/LENAX/content-pipeline/internal/storage"
	"github.com/LENAX/content-pipeline/pkg/collaborator/compliance"
	"github.com/LENAX/content-pipeline/pkg/collaborator/image"
	"github.com/LENAX/content-pipeline/pkg/collaborator/llm"
	"github.com/LENAX/content-pipeline/pkg/collaborator/publisher"
	"github.com/LENAX/content-pipeline/pkg/collaborator/trending"
	"github.com/LENAX/content-pipeline/pkg/config"
	"github.com/LENAX/content-pipeline/pkg/core/cache"
	"github.com/LENAX/content-pipeline/pkg/core/executor"
	"github.com/LENAX/content-pipeline/pkg/core/realtime"
	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/plugin"
)

// EngineBuilder 引擎构建器（链式调用）
type EngineBuilder struct {
	configPath     string
	cfg            *config.EngineConfig
	overrides      types.Collaborators
	plugins        map[string]plugin.Plugin
	pluginBindings []plugin.PluginBinding
	err            error
}

// NewEngineBuilder 创建引擎构建器（入口）
func NewEngineBuilder(configPath string) *EngineBuilder {
	return &EngineBuilder{
		configPath: configPath,
		plugins:    make(map[string]plugin.Plugin),
	}
}

// WithConfig 直接使用已加载的配置，跳过读取文件
func (b *EngineBuilder) WithConfig(cfg *config.EngineConfig) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if cfg == nil {
		b.err = errors.New("config cannot be nil")
		return b
	}
	b.cfg = cfg
	return b
}

// WithCollaborators 覆盖由配置创建的协作者，未设置的字段仍按配置创建
func (b *EngineBuilder) WithCollaborators(c types.Collaborators) *EngineBuilder {
	if b.err != nil {
		return b
	}
	b.overrides = c
	return b
}

// WithPlugin 注册自定义插件（链式）
func (b *EngineBuilder) WithPlugin(p plugin.Plugin) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if p == nil {
		b.err = errors.New("plugin cannot be nil")
		return b
	}
	name := p.Name()
	if name == "" {
		b.err = errors.New("plugin name cannot be empty")
		return b
	}
	b.plugins[name] = p
	return b
}

// WithPluginBinding 绑定插件到事件（链式）
func (b *EngineBuilder) WithPluginBinding(binding plugin.PluginBinding) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if binding.PluginName == "" || binding.Event == "" {
		b.err = errors.New("plugin name and trigger event cannot be empty")
		return b
	}
	if _, exists := b.plugins[binding.PluginName]; !exists {
		b.err = fmt.Errorf("plugin %s not registered, please register it first using WithPlugin", binding.PluginName)
		return b
	}
	b.pluginBindings = append(b.pluginBindings, binding)
	return b
}

// Build 构建引擎实例（最终步骤）
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}

	// 1. 加载配置
	cfg := b.cfg
	if cfg == nil {
		loaded, err := config.Load(b.configPath)
		if err != nil {
			return nil, fmt.Errorf("load engine config failed: %w", err)
		}
		cfg = loaded
	}
	p := &cfg.Pipeline

	// 2. 初始化存储层
	factory, err := internalstorage.NewDatabaseFactory(p.Storage.Database.Type, p.Storage.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("init storage failed: %w", err)
	}
	repos := factory.Repositories()

	var closers []func() error
	closers = append(closers, factory.Close)
	fail := func(err error) (*Engine, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	// 3. 协作者
	collab, collabClosers, err := b.buildCollaborators(cfg)
	closers = append(closers, collabClosers...)
	if err != nil {
		return fail(fmt.Errorf("init collaborators failed: %w", err))
	}

	// 4. 插件
	plugins, err := b.buildPlugins(cfg)
	if err != nil {
		return fail(fmt.Errorf("init plugins failed: %w", err))
	}

	// 5. 定时任务
	var jobs []BatchJob
	if p.Scheduler.Enabled {
		for _, j := range p.Scheduler.Jobs {
			jobs = append(jobs, BatchJob{Name: j.Name, CronExpr: j.Cron, UserID: j.UserID, Count: j.Count})
		}
	}

	bus := realtime.NewEventBus(realtime.WithDebugLog(p.General.LogLevel == "debug", false))

	eng, err := NewEngine(Dependencies{
		Collaborators: collab,
		Snapshots:     repos.Snapshots,
		Records:       repos.Records,
		Bus:           bus,
		Plugins:       plugins,
		Executor: executor.Options{
			DefaultTimeout: p.Execution.DefaultStepTimeout,
			StepTimeouts: map[workflow.Step]time.Duration{
				workflow.StepCreate:  p.Execution.CreateTimeout,
				workflow.StepPublish: p.Execution.PublishTimeout,
			},
			SinkTimeout: p.Execution.SinkTimeout,
			PublishRetry: executor.RetryPolicy{
				MaxAttempts:  p.Execution.Retry.MaxAttempts,
				InitialDelay: p.Execution.Retry.Delay,
				MaxDelay:     p.Execution.Retry.MaxDelay,
			},
			TopicCount: p.Execution.TopicCount,
		},
		Coordinator: CoordinatorOptions{
			BatchConcurrency:  p.Execution.BatchConcurrency,
			MaxBatchSize:      p.Execution.MaxBatchSize,
			RecentTopicWindow: p.Execution.RecentTopicWindow,
		},
		Jobs: jobs,
	})
	if err != nil {
		_ = bus.Close()
		return fail(fmt.Errorf("create engine failed: %w", err))
	}
	for _, c := range closers {
		eng.OnClose(c)
	}

	log.Printf("✅ [EngineBuilder] 引擎构建完成: Instance=%s, DB=%s, Publisher=%s, Plugins=%v",
		p.General.InstanceName, p.Storage.Database.Type, p.Collaborators.Publisher.Type, plugins.ListPlugins())
	return eng, nil
}

// buildCollaborators 按配置创建协作者，已覆盖的字段跳过
func (b *EngineBuilder) buildCollaborators(cfg *config.EngineConfig) (types.Collaborators, []func() error, error) {
	p := &cfg.Pipeline.Collaborators
	c := b.overrides
	var closers []func() error

	if c.Topics == nil {
		tr := p.Trending
		var source types.TopicSource = trending.NewMultiSource(
			trending.NewWeiboSource(tr.WeiboURL, tr.Timeout),
			trending.NewBoardSource("baidu", tr.BoardURL, trending.BoardSelectors{
				Item:  tr.BoardItemSelector,
				Title: tr.BoardTitleSelector,
				Score: tr.BoardScoreSelector,
			}, tr.Timeout),
		)
		if cc := cfg.Pipeline.Storage.Cache; cc.Enabled {
			rc := cache.NewMemoryResultCache(cc.CleanInterval)
			closers = append(closers, func() error { rc.Stop(); return nil })
			source = trending.NewCachedSource(source, rc, cc.DefaultTTL)
		}
		c.Topics = source
	}

	if c.Generator == nil {
		gen, err := llm.NewGenerator(llm.Config{
			APIKey:      p.LLM.APIKey,
			BaseURL:     p.LLM.BaseURL,
			Model:       p.LLM.Model,
			Temperature: p.LLM.Temperature,
			MaxTokens:   p.LLM.MaxTokens,
			Timeout:     p.LLM.Timeout,
		})
		if err != nil {
			return c, closers, fmt.Errorf("%w（请设置 %s 和 %s）", err, config.EnvArkAPIKey, config.EnvArkModelEndpoint)
		}
		c.Generator = gen
	}

	if c.Images == nil && p.Image.Enabled {
		gen, err := image.NewGenerator(image.Config{
			APIKey:  p.LLM.APIKey,
			BaseURL: p.LLM.BaseURL,
			Model:   p.Image.Model,
			Size:    p.Image.Size,
		})
		if err != nil {
			return c, closers, err
		}
		c.Images = gen
	}

	if c.TopicCompliance == nil {
		c.TopicCompliance = compliance.NewTopicChecker(p.Compliance.TopicBlacklist)
	}
	if c.ContentCompliance == nil {
		c.ContentCompliance = compliance.NewContentChecker(compliance.Rules{
			Blacklist:     p.Compliance.ContentBlacklist,
			MinBodyLength: p.Compliance.MinBodyLength,
			Disclaimers:   p.Compliance.Disclaimers,
		})
	}

	if c.Publisher == nil {
		switch p.Publisher.Type {
		case "mcp":
			pub, err := publisher.NewMCPPublisher(p.Publisher.MCPURL, p.Publisher.Timeout)
			if err != nil {
				return c, closers, err
			}
			closers = append(closers, pub.Close)
			c.Publisher = pub
		default:
			c.Publisher = publisher.NewDryRunPublisher()
		}
	}
	return c, closers, nil
}

// buildPlugins 注册配置中启用的通知插件和自定义插件
func (b *EngineBuilder) buildPlugins(cfg *config.EngineConfig) (plugin.PluginManager, error) {
	p := &cfg.Pipeline.Plugins
	pm := plugin.NewPluginManager()

	type builtin struct {
		enabled bool
		plugin  plugin.Plugin
		params  map[string]string
	}
	builtins := []builtin{
		{p.File.Enabled, plugin.NewFilePlugin(), map[string]string{"dir": p.File.Dir}},
		{p.Feishu.Enabled, plugin.NewFeishuPlugin(), map[string]string{"webhook_url": p.Feishu.WebhookURL}},
		{p.Email.Enabled, plugin.NewEmailPlugin(), map[string]string{
			"smtp_host":  p.Email.SMTPHost,
			"smtp_port":  p.Email.SMTPPort,
			"username":   p.Email.Username,
			"password":   p.Email.Password,
			"from":       p.Email.From,
			"to":         p.Email.To,
			"review_url": p.Email.ReviewURL,
		}},
		{p.Telegram.Enabled, plugin.NewTelegramPlugin(), map[string]string{
			"token":   p.Telegram.Token,
			"chat_id": strconv.FormatInt(p.Telegram.ChatID, 10),
		}},
		{p.Discord.Enabled, plugin.NewDiscordPlugin(), map[string]string{
			"token":      p.Discord.Token,
			"channel_id": p.Discord.ChannelID,
		}},
	}

	events := append(plugin.LifecycleEvents(), plugin.EventStepFailed)
	for _, bi := range builtins {
		if !bi.enabled {
			continue
		}
		if err := pm.RegisterWithInit(bi.plugin, bi.params); err != nil {
			return nil, err
		}
		if err := pm.BindEvents(bi.plugin.Name(), events...); err != nil {
			return nil, err
		}
	}

	for _, custom := range b.plugins {
		if err := pm.Register(custom); err != nil {
			return nil, err
		}
	}
	for _, binding := range b.pluginBindings {
		if err := pm.Bind(binding); err != nil {
			return nil, err
		}
	}
	return pm, nil
}
