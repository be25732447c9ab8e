package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

const (
	minBodyLength  = 10
	maxImagePrompt = 2
)

// research 拉取热点并挑选一个未使用过的选题
func (e *StepExecutor) research(ctx context.Context, st *workflow.WorkflowState) (*stepReport, error) {
	candidates, err := e.collab.Topics.Discover(ctx, e.opts.TopicCount)
	if err != nil {
		return nil, fmt.Errorf("获取热点失败: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("获取热点失败: %w", types.ErrSourceUnavailable)
	}

	ledger := GetTopicLedger(ctx)
	if ledger == nil {
		ledger = NewTopicLedger(nil)
	}
	picked, release, _ := ledger.Reserve(candidates, st.RecentTopics)
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}

	st.HotTopics = candidates
	st.SelectedTopic = &picked

	return &stepReport{
		Action: "select_topic",
		undo:   release,
		Output: map[string]interface{}{
			"candidates": len(candidates),
			"selected":   picked.Title,
			"source":     picked.Source,
			"score":      picked.Score,
		},
	}, nil
}

// topicCompliance 选题合规检查，BLOCK 记为 BLOCKED
func (e *StepExecutor) topicCompliance(ctx context.Context, st *workflow.WorkflowState) (*stepReport, error) {
	verdict := check(ctx, e.collab.TopicCompliance, types.ComplianceSubject{Titles: []string{st.SelectedTopic.Title}})
	st.ComplianceResult = verdict
	return complianceReport("check_topic", verdict), nil
}

// create 调用模型生成草稿，校验通过后生成配图并递增修订轮次
func (e *StepExecutor) create(ctx context.Context, st *workflow.WorkflowState) (*stepReport, error) {
	req := types.GenerateRequest{
		Topic:         *st.SelectedTopic,
		RevisionRound: st.RevisionRound + 1,
		RevisionNotes: st.RevisionNotes,
	}
	if st.Content != nil {
		req.PreviousBody = st.Content.Body
	}

	draft, err := e.collab.Generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("生成内容失败: %w", err)
	}
	content, err := validateDraft(draft)
	if err != nil {
		return nil, err
	}

	output := map[string]interface{}{
		"title":          content.PrimaryTitle(),
		"body_length":    utf8.RuneCountInString(content.Body),
		"tags":           content.Tags,
		"revision_round": st.RevisionRound + 1,
	}

	if e.collab.Images != nil && len(content.ImagePrompts) > 0 {
		prompts := content.ImagePrompts
		if len(prompts) > maxImagePrompt {
			prompts = prompts[:maxImagePrompt]
		}
		images, err := e.collab.Images.Generate(ctx, prompts, st.UserID)
		if err != nil {
			log.Printf("⚠️ [StepExecutor] 配图生成失败，继续执行: WorkflowID=%s, Error=%v", st.WorkflowID, err)
			output["image_error"] = err.Error()
			images = nil
		}
		content.Images = images
	}
	output["images"] = len(content.Images)

	st.Content = content
	st.RevisionRound++

	return &stepReport{Action: "generate_content", Output: output}, nil
}

// validateDraft 草稿校验：至少一个非空标题，正文不少于10个字符
func validateDraft(d *types.Draft) (*workflow.Content, error) {
	if d == nil {
		return nil, workflow.ValidationError(workflow.StepCreate, "generator returned no draft")
	}

	titles := make([]string, 0, len(d.Titles))
	for _, t := range d.Titles {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return nil, workflow.ValidationError(workflow.StepCreate, "generated content has no title")
	}

	body := strings.TrimSpace(d.Body)
	if body == "" {
		return nil, workflow.ValidationError(workflow.StepCreate, "generated content has no body")
	}
	if n := utf8.RuneCountInString(body); n < minBodyLength {
		return nil, workflow.ValidationError(workflow.StepCreate, "generated body shorter than %d characters (got %d)", minBodyLength, n)
	}

	return &workflow.Content{
		Titles:       titles,
		Body:         body,
		Tags:         append([]string(nil), d.Tags...),
		ImagePrompts: append([]string(nil), d.ImagePrompts...),
	}, nil
}

// contentCompliance 内容合规复核，结论交给审核人
func (e *StepExecutor) contentCompliance(ctx context.Context, st *workflow.WorkflowState) (*stepReport, error) {
	verdict := check(ctx, e.collab.ContentCompliance, types.ComplianceSubject{
		Titles: st.Content.Titles,
		Body:   st.Content.Body,
	})
	st.ComplianceResult = verdict
	return complianceReport("review_content", verdict), nil
}

// review 清空审核结论并通知审核人，通知失败不影响工作流
func (e *StepExecutor) review(ctx context.Context, st *workflow.WorkflowState) (*stepReport, error) {
	st.ReviewDecision = workflow.DecisionPending

	output := map[string]interface{}{
		"revision_round": st.RevisionRound,
		"notified":       false,
	}
	if st.ComplianceResult != nil {
		output["compliance_status"] = st.ComplianceResult.Status
	}

	if e.collab.Review != nil {
		notice := types.ReviewNotice{
			WorkflowID:    st.WorkflowID,
			UserID:        st.UserID,
			Topic:         st.SelectedTopic,
			Content:       st.Content,
			Compliance:    st.ComplianceResult,
			RevisionRound: st.RevisionRound,
		}
		if err := e.collab.Review.NotifyReview(ctx, notice); err != nil {
			log.Printf("⚠️ [StepExecutor] 审核通知失败: WorkflowID=%s, Error=%v", st.WorkflowID, err)
			output["notify_error"] = err.Error()
		} else {
			output["notified"] = true
		}
	}

	return &stepReport{Action: "await_review", Status: workflow.RecordPending, Output: output}, nil
}

// publish 发布内容，失败时按指数退避重试
func (e *StepExecutor) publish(ctx context.Context, st *workflow.WorkflowState) (*stepReport, error) {
	req := types.PublishRequest{
		WorkflowID: st.WorkflowID,
		Title:      st.Content.PrimaryTitle(),
		Body:       st.Content.Body,
		Tags:       append([]string(nil), st.Content.Tags...),
	}
	for _, img := range st.Content.Images {
		req.Images = append(req.Images, img.URL)
	}

	policy := e.opts.PublishRetry
	attempts := 0
	var result *workflow.PublishResult

	op := func() error {
		attempts++
		res, err := e.collab.Publisher.Publish(ctx, req)
		if err != nil {
			return err
		}
		if res == nil || !res.Success {
			msg := "publish target reported failure"
			if res != nil && res.Error != "" {
				msg = res.Error
			}
			return errors.New(msg)
		}
		result = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialDelay
	b.MaxInterval = policy.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	notify := func(err error, wait time.Duration) {
		log.Printf("🔄 [StepExecutor] 发布失败，准备重试: WorkflowID=%s, 第%d次, 延迟=%v, Error=%v", st.WorkflowID, attempts, wait, err)
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, retry, notify); err != nil {
		return &stepReport{
			Action: "publish_content",
			Output: map[string]interface{}{"attempts": attempts},
		}, fmt.Errorf("发布失败（共%d次尝试）: %w", attempts, err)
	}

	result.Attempts = attempts
	st.Published = true
	st.PublishResult = result

	return &stepReport{
		Action: "publish_content",
		Output: map[string]interface{}{
			"publish_id": result.ID,
			"attempts":   attempts,
		},
	}, nil
}

// analytics 汇总本次实例的结果
func (e *StepExecutor) analytics(_ context.Context, st *workflow.WorkflowState) (*stepReport, error) {
	output := map[string]interface{}{
		"published":      st.Published,
		"revision_round": st.RevisionRound,
		"title":          st.Content.PrimaryTitle(),
		"body_length":    utf8.RuneCountInString(st.Content.Body),
		"tag_count":      len(st.Content.Tags),
		"image_count":    len(st.Content.Images),
	}
	if st.PublishResult != nil {
		output["publish_id"] = st.PublishResult.ID
		output["publish_attempts"] = st.PublishResult.Attempts
	}
	if !st.CreatedAt.IsZero() {
		output["elapsed_ms"] = time.Since(st.CreatedAt).Milliseconds()
	}
	return &stepReport{Action: "summarize", Output: output}, nil
}

// check 调用合规检查，检查器出错时按 BLOCK 处理
func check(ctx context.Context, checker types.ComplianceChecker, subject types.ComplianceSubject) *workflow.ComplianceVerdict {
	verdict, err := checker.Check(ctx, subject)
	if err != nil || verdict == nil {
		reason := "compliance checker returned no verdict"
		if err != nil {
			reason = fmt.Sprintf("compliance checker error: %v", err)
		}
		log.Printf("⚠️ [StepExecutor] %s，按BLOCK处理", reason)
		return &workflow.ComplianceVerdict{
			Status:    workflow.ComplianceBlock,
			RiskLevel: workflow.RiskHigh,
			Issues:    []string{reason},
		}
	}
	return verdict
}

func complianceReport(action string, v *workflow.ComplianceVerdict) *stepReport {
	status := workflow.RecordSuccess
	if v.Blocked() {
		status = workflow.RecordBlocked
	}
	return &stepReport{
		Action: action,
		Status: status,
		Output: map[string]interface{}{
			"status":      v.Status,
			"risk_level":  v.RiskLevel,
			"issues":      v.Issues,
			"suggestions": v.Suggestions,
		},
	}
}
