package plugin

import (
	"fmt"
	"sort"
	"strings"
)

// eventTitle 事件的中文标题
func eventTitle(event TriggerEvent) string {
	switch event {
	case EventWorkflowStarted:
		return "工作流启动"
	case EventReviewPending:
		return "待审核"
	case EventWorkflowResumed:
		return "审核已提交"
	case EventWorkflowPublished:
		return "发布成功"
	case EventWorkflowBlocked:
		return "合规拦截"
	case EventWorkflowRejected:
		return "审核拒绝"
	case EventWorkflowRevisionExhausted:
		return "修改次数耗尽"
	case EventWorkflowFailed:
		return "工作流失败"
	case EventStepFailed:
		return "步骤失败"
	default:
		return "系统通知"
	}
}

// summaryText 生成通用的纯文本摘要
func summaryText(data PluginData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n工作流: %s\n", eventTitle(data.Event), data.WorkflowID))
	if data.UserID != "" {
		b.WriteString(fmt.Sprintf("用户: %s\n", data.UserID))
	}
	if data.Step != "" {
		b.WriteString(fmt.Sprintf("步骤: %s\n", data.Step))
	}
	if data.Status != "" {
		b.WriteString(fmt.Sprintf("状态: %s\n", data.Status))
	}
	for _, k := range sortedKeys(data.Data) {
		b.WriteString(fmt.Sprintf("%s: %v\n", k, data.Data[k]))
	}
	if data.Error != "" {
		b.WriteString(fmt.Sprintf("错误: %s\n", data.Error))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
