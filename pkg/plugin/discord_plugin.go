package plugin

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

// discordMessageLimit Discord单条消息长度上限
const discordMessageLimit = 2000

// DiscordPlugin Discord频道通知插件（对外导出）
// 只使用REST接口发送消息，不建立网关连接
type DiscordPlugin struct {
	name      string
	session   *discordgo.Session
	channelID string
	enabled   bool
}

// NewDiscordPlugin 创建Discord通知插件（对外导出）
// 参数: token, channel_id
func NewDiscordPlugin() Plugin {
	return &DiscordPlugin{name: "discord"}
}

// Name 插件名称（实现Plugin接口）
func (d *DiscordPlugin) Name() string {
	return d.name
}

// Init 初始化插件（实现Plugin接口）
func (d *DiscordPlugin) Init(params map[string]string) error {
	token := params["token"]
	if token == "" {
		return fmt.Errorf("token参数不能为空")
	}
	d.channelID = params["channel_id"]
	if d.channelID == "" {
		return fmt.Errorf("channel_id参数不能为空")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("创建Discord会话失败: %w", err)
	}
	d.session = session
	d.enabled = true
	log.Printf("✅ [DiscordPlugin] 初始化完成: ChannelID=%s", d.channelID)
	return nil
}

// Execute 发送Discord消息（实现Plugin接口）
func (d *DiscordPlugin) Execute(ctx context.Context, data PluginData) error {
	if !d.enabled {
		return fmt.Errorf("Discord插件未初始化")
	}

	text := formatDiscord(data)
	if _, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("发送Discord消息失败: %w", err)
	}

	log.Printf("✅ [DiscordPlugin] 消息已发送: Event=%s, WorkflowID=%s", data.Event, data.WorkflowID)
	return nil
}

// formatDiscord 标题加粗，超长截断
func formatDiscord(data PluginData) string {
	text := "**" + eventTitle(data.Event) + "**\n" + summaryText(data)
	runes := []rune(text)
	if len(runes) > discordMessageLimit {
		text = string(runes[:discordMessageLimit-3]) + "..."
	}
	return text
}
