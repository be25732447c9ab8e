// Package compliance 基于关键词的合规检查
package compliance

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// Rules 合规规则
type Rules struct {
	Blacklist     []string // 标题或正文命中即拦截
	MinBodyLength int      // 正文最少字符数，0表示不检查
	Disclaimers   []string // 正文包含其中任意一条即可，全部缺失时给出建议
}

// KeywordChecker 关键词合规检查器（对外导出）
type KeywordChecker struct {
	name  string
	rules Rules
}

// NewTopicChecker 选题合规：只检查黑名单
func NewTopicChecker(blacklist []string) *KeywordChecker {
	return &KeywordChecker{name: "topic", rules: Rules{Blacklist: blacklist}}
}

// NewContentChecker 内容合规：黑名单、正文长度与风险提示
func NewContentChecker(rules Rules) *KeywordChecker {
	return &KeywordChecker{name: "content", rules: rules}
}

// Check 实现 types.ComplianceChecker
// 存在任一问题时 BLOCK/HIGH，否则 PASS/LOW；建议不影响结论
func (c *KeywordChecker) Check(ctx context.Context, subject types.ComplianceSubject) (*workflow.ComplianceVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var issues, suggestions []string
	for _, word := range c.rules.Blacklist {
		if word != "" && containsWord(subject, word) {
			issues = append(issues, fmt.Sprintf("包含敏感词: %s", word))
		}
	}

	if c.rules.MinBodyLength > 0 {
		if n := utf8.RuneCountInString(strings.TrimSpace(subject.Body)); n < c.rules.MinBodyLength {
			issues = append(issues, fmt.Sprintf("正文过短: %d字，至少需要%d字", n, c.rules.MinBodyLength))
		}
	}

	if len(c.rules.Disclaimers) > 0 && !hasAny(subject.Body, c.rules.Disclaimers) {
		suggestions = append(suggestions, fmt.Sprintf("建议添加风险提示语（如: %s）", strings.Join(c.rules.Disclaimers, " / ")))
	}

	verdict := &workflow.ComplianceVerdict{
		Status:      workflow.CompliancePass,
		RiskLevel:   workflow.RiskLow,
		Issues:      issues,
		Suggestions: suggestions,
	}
	if len(issues) > 0 {
		verdict.Status = workflow.ComplianceBlock
		verdict.RiskLevel = workflow.RiskHigh
	}
	return verdict, nil
}

func containsWord(subject types.ComplianceSubject, word string) bool {
	if strings.Contains(subject.Body, word) {
		return true
	}
	for _, t := range subject.Titles {
		if strings.Contains(t, word) {
			return true
		}
	}
	return false
}

func hasAny(text string, candidates []string) bool {
	for _, c := range candidates {
		if c != "" && strings.Contains(text, c) {
			return true
		}
	}
	return false
}

var _ types.ComplianceChecker = (*KeywordChecker)(nil)
