package plugin

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramPlugin Telegram通知插件（对外导出）
type TelegramPlugin struct {
	name    string
	bot     *bot.Bot
	chatID  int64
	enabled bool
}

// NewTelegramPlugin 创建Telegram通知插件（对外导出）
// 参数: token, chat_id, server_url（可选，用于自建Bot API）
func NewTelegramPlugin() Plugin {
	return &TelegramPlugin{name: "telegram"}
}

// Name 插件名称（实现Plugin接口）
func (t *TelegramPlugin) Name() string {
	return t.name
}

// Init 初始化插件（实现Plugin接口）
func (t *TelegramPlugin) Init(params map[string]string) error {
	token := params["token"]
	if token == "" {
		return fmt.Errorf("token参数不能为空")
	}
	chatID, err := strconv.ParseInt(params["chat_id"], 10, 64)
	if err != nil || chatID == 0 {
		return fmt.Errorf("chat_id参数格式错误: %q", params["chat_id"])
	}

	opts := []bot.Option{bot.WithSkipGetMe()}
	if serverURL := params["server_url"]; serverURL != "" {
		opts = append(opts, bot.WithServerURL(serverURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return fmt.Errorf("创建Telegram Bot失败: %w", err)
	}

	t.bot = b
	t.chatID = chatID
	t.enabled = true
	log.Printf("✅ [TelegramPlugin] 初始化完成: ChatID=%d", chatID)
	return nil
}

// Execute 发送Telegram消息（实现Plugin接口）
func (t *TelegramPlugin) Execute(ctx context.Context, data PluginData) error {
	if !t.enabled {
		return fmt.Errorf("Telegram插件未初始化")
	}

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      t.buildText(data),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("发送Telegram消息失败: %w", err)
	}

	log.Printf("✅ [TelegramPlugin] 消息已发送: Event=%s, WorkflowID=%s", data.Event, data.WorkflowID)
	return nil
}

func (t *TelegramPlugin) buildText(data PluginData) string {
	lines := strings.SplitN(summaryText(data), "\n", 2)
	text := "<b>" + html.EscapeString(lines[0]) + "</b>"
	if len(lines) > 1 {
		text += "\n" + html.EscapeString(lines[1])
	}
	return text
}
