package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// FeishuPlugin 飞书群机器人通知插件（对外导出）
// 以交互式卡片发送，响应 code == 0 视为成功
type FeishuPlugin struct {
	name       string
	webhookURL string
	client     *http.Client
	enabled    bool
}

// NewFeishuPlugin 创建飞书通知插件（对外导出）
// 参数: webhook_url, timeout（可选，如 10s）
func NewFeishuPlugin() Plugin {
	return &FeishuPlugin{name: "feishu"}
}

// Name 插件名称（实现Plugin接口）
func (f *FeishuPlugin) Name() string {
	return f.name
}

// Init 初始化插件（实现Plugin接口）
func (f *FeishuPlugin) Init(params map[string]string) error {
	f.webhookURL = params["webhook_url"]
	if f.webhookURL == "" {
		return fmt.Errorf("webhook_url参数不能为空")
	}
	timeout := 10 * time.Second
	if v := params["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("timeout参数格式错误: %w", err)
		}
		timeout = d
	}
	f.client = &http.Client{Timeout: timeout}
	f.enabled = true
	log.Printf("✅ [FeishuPlugin] 初始化完成")
	return nil
}

type feishuResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Execute 发送飞书卡片（实现Plugin接口）
func (f *FeishuPlugin) Execute(ctx context.Context, data PluginData) error {
	if !f.enabled {
		return fmt.Errorf("飞书插件未初始化")
	}

	body, err := json.Marshal(f.buildCard(data))
	if err != nil {
		return fmt.Errorf("序列化飞书卡片失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送飞书通知失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取飞书响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("飞书返回HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var result feishuResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("解析飞书响应失败: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("飞书返回错误: code=%d, msg=%s", result.Code, result.Msg)
	}

	log.Printf("✅ [FeishuPlugin] 通知已发送: Event=%s, WorkflowID=%s", data.Event, data.WorkflowID)
	return nil
}

// buildCard 构建交互式卡片
func (f *FeishuPlugin) buildCard(data PluginData) map[string]interface{} {
	elements := []interface{}{
		map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"tag":     "lark_md",
				"content": summaryText(data),
			},
		},
	}
	if data.Event == EventReviewPending {
		elements = append(elements, map[string]interface{}{
			"tag": "note",
			"elements": []interface{}{
				map[string]interface{}{
					"tag":     "plain_text",
					"content": fmt.Sprintf("POST /api/v1/workflows/%s/review 提交审核结果", data.WorkflowID),
				},
			},
		})
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": eventTitle(data.Event),
				},
				"template": cardColor(data.Event),
			},
			"elements": elements,
		},
	}
}

func cardColor(event TriggerEvent) string {
	switch event {
	case EventWorkflowPublished:
		return "green"
	case EventReviewPending, EventWorkflowResumed:
		return "blue"
	case EventWorkflowFailed, EventStepFailed, EventWorkflowBlocked:
		return "red"
	default:
		return "orange"
	}
}
