package plugin

import (
	"context"

	"github.com/LENAX/content-pipeline/pkg/core/types"
)

// ReviewNotifier 通过插件管理器发送审核提醒（实现 types.ReviewChannel）
type ReviewNotifier struct {
	manager PluginManager
}

// NewReviewNotifier 创建审核提醒通道
func NewReviewNotifier(manager PluginManager) *ReviewNotifier {
	return &ReviewNotifier{manager: manager}
}

// NotifyReview 触发 review.pending 事件
func (n *ReviewNotifier) NotifyReview(ctx context.Context, notice types.ReviewNotice) error {
	data := PluginData{
		WorkflowID: notice.WorkflowID,
		UserID:     notice.UserID,
		Step:       "review",
		Status:     "PENDING",
		Data: map[string]interface{}{
			"revision_round": notice.RevisionRound,
		},
	}
	if notice.Topic != nil {
		data.Data["topic"] = notice.Topic.Title
	}
	if notice.Content != nil {
		data.Data["title"] = notice.Content.PrimaryTitle()
		data.Data["tags"] = notice.Content.Tags
	}
	if notice.Compliance != nil {
		data.Data["compliance"] = string(notice.Compliance.Status)
		data.Data["risk_level"] = string(notice.Compliance.RiskLevel)
		if len(notice.Compliance.Issues) > 0 {
			data.Data["issues"] = notice.Compliance.Issues
		}
	}
	return n.manager.Trigger(ctx, EventReviewPending, data)
}

var _ types.ReviewChannel = (*ReviewNotifier)(nil)
