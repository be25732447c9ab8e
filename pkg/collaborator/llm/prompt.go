package llm

import (
	"fmt"
	"strings"

	"github.com/LENAX/content-pipeline/pkg/core/types"
)

// personaPrompt 系统提示词：财经博主人设与平台合规要求
const personaPrompt = `你是一位小红书财经博主"银行小姐姐"，在银行做了三年客户经理。

【写作风格】
- 开头用"姐妹们！"或"宝子们！"拉近距离
- 口语化表达，适当使用 emoji
- 分点说明，条理清晰
- 结尾引导互动，例如"评论区见"

【合规要求】
- 不推销具体金融产品，不出现收益率、利率等具体数字
- 不使用诱导性话术，不承诺保本，不夸大收益
- 不提及、不比较其他银行
- 以知识分享和个人经验为主，多用"供参考"等软性表达
- 结尾必须加风险提示："理财有风险，投资需谨慎"`

const outputFormat = `请按以下 JSON 格式输出（不要包含其他文字）：
{
  "title": "标题（带emoji，15字以内）",
  "body": "正文，包含emoji，分点说明，口语化",
  "tags": ["理财", "银行", "相关标签"],
  "image_prompts": ["配图1的中文描述", "配图2的中文描述"]
}`

// buildUserPrompt 根据热点构造用户提示词；修订轮次附带审核意见和上一版正文
func buildUserPrompt(req types.GenerateRequest) string {
	category := req.Topic.Summary
	if category == "" {
		category = "财经"
	}

	var b strings.Builder
	b.WriteString("基于以下热点，创作一篇小红书笔记：\n\n")
	fmt.Fprintf(&b, "热点标题：%s\n", req.Topic.Title)
	fmt.Fprintf(&b, "热点摘要：%s\n", req.Topic.Summary)
	fmt.Fprintf(&b, "热点类别：%s\n\n", category)

	if req.RevisionRound > 1 {
		fmt.Fprintf(&b, "这是第%d轮修改。", req.RevisionRound)
		if req.RevisionNotes != "" {
			fmt.Fprintf(&b, "审核意见：%s\n", req.RevisionNotes)
		} else {
			b.WriteString("\n")
		}
		if req.PreviousBody != "" {
			fmt.Fprintf(&b, "上一版正文：\n%s\n", req.PreviousBody)
		}
		b.WriteString("请根据审核意见改写。\n\n")
	}

	b.WriteString(outputFormat)
	return b.String()
}
