// Package types 定义引擎依赖的外部协作者接口，用于解耦核心引擎与具体实现
package types

import (
	"context"
	"errors"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

var (
	// ErrSourceUnavailable 热点源无法产出候选
	ErrSourceUnavailable = errors.New("topic source unavailable")
	// ErrGenerationTimeout 内容生成超时
	ErrGenerationTimeout = errors.New("content generation timeout")
	// ErrGenerationError 内容生成失败
	ErrGenerationError = errors.New("content generation error")
)

// TopicSource 热点来源
type TopicSource interface {
	// Discover 返回最多count个热点候选；无候选时返回 ErrSourceUnavailable
	Discover(ctx context.Context, count int) ([]workflow.TopicCandidate, error)
}

// GenerateRequest 内容生成请求
type GenerateRequest struct {
	Topic         workflow.TopicCandidate
	RevisionRound int    // 本次为第几轮创作（从1开始）
	RevisionNotes string // 审核人的修改意见（修订轮次）
	PreviousBody  string // 上一轮正文（修订轮次）
}

// Draft 生成的草稿
type Draft struct {
	Titles       []string
	Body         string
	Tags         []string
	ImagePrompts []string
}

// ContentGenerator AI内容生成
type ContentGenerator interface {
	// Generate 失败时返回包装了 ErrGenerationTimeout 或 ErrGenerationError 的错误
	Generate(ctx context.Context, req GenerateRequest) (*Draft, error)
}

// ImageGenerator 配图生成，失败不影响实例
type ImageGenerator interface {
	Generate(ctx context.Context, prompts []string, ownerID string) ([]workflow.ImageResult, error)
}

// ComplianceSubject 待检查的文本，标题和正文分开提交
type ComplianceSubject struct {
	Titles []string
	Body   string
}

// ComplianceChecker 合规检查；内部错误由调用方按 BLOCK 处理
type ComplianceChecker interface {
	Check(ctx context.Context, subject ComplianceSubject) (*workflow.ComplianceVerdict, error)
}

// ReviewNotice 待审核通知内容
type ReviewNotice struct {
	WorkflowID    string
	UserID        string
	Topic         *workflow.TopicCandidate
	Content       *workflow.Content
	Compliance    *workflow.ComplianceVerdict
	RevisionRound int
}

// ReviewChannel 审核通知通道，通知失败不影响工作流
type ReviewChannel interface {
	NotifyReview(ctx context.Context, notice ReviewNotice) error
}

// PublishRequest 发布请求
type PublishRequest struct {
	WorkflowID string
	Title      string
	Body       string
	Images     []string
	Tags       []string
}

// PublishTarget 发布目标；返回 Success=false 的结果视为一次失败尝试
type PublishTarget interface {
	Publish(ctx context.Context, req PublishRequest) (*workflow.PublishResult, error)
}

// LogSink 执行记录落库，只追加
type LogSink interface {
	Append(ctx context.Context, record *workflow.ExecutionRecord) error
}

// LogSinkFunc 函数适配器
type LogSinkFunc func(ctx context.Context, record *workflow.ExecutionRecord) error

// Append 实现 LogSink
func (f LogSinkFunc) Append(ctx context.Context, record *workflow.ExecutionRecord) error {
	return f(ctx, record)
}

// Collaborators 引擎依赖的全部协作者
type Collaborators struct {
	Topics            TopicSource
	Generator         ContentGenerator
	Images            ImageGenerator // 可选
	TopicCompliance   ComplianceChecker
	ContentCompliance ComplianceChecker
	Review            ReviewChannel // 可选
	Publisher         PublishTarget
}

// Validate 检查必需的协作者
func (c Collaborators) Validate() error {
	switch {
	case c.Topics == nil:
		return errors.New("topic source is required")
	case c.Generator == nil:
		return errors.New("content generator is required")
	case c.TopicCompliance == nil:
		return errors.New("topic compliance checker is required")
	case c.ContentCompliance == nil:
		return errors.New("content compliance checker is required")
	case c.Publisher == nil:
		return errors.New("publish target is required")
	}
	return nil
}
