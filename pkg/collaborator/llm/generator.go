// Package llm 基于 OpenAI 兼容接口（方舟大模型）生成小红书笔记
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/LENAX/content-pipeline/pkg/core/types"
)

// Config 生成器配置
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string // 方舟模型接入点
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Generator 内容生成器（对外导出）
type Generator struct {
	client *openai.Client
	cfg    Config
}

// NewGenerator 创建内容生成器，APIKey和Model必填
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api_key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	log.Printf("✅ [LLM] 使用模型: %s", cfg.Model)
	return &Generator{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Generate 实现 types.ContentGenerator
func (g *Generator) Generate(ctx context.Context, req types.GenerateRequest) (*types.Draft, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: personaPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("模型调用超时: %v: %w", err, types.ErrGenerationTimeout)
		}
		return nil, fmt.Errorf("模型调用失败: %v: %w", err, types.ErrGenerationError)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("模型未返回内容: %w", types.ErrGenerationError)
	}

	draft, err := parseDraft(resp.Choices[0].Message.Content, req.Topic.Title)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [LLM] 生成完成: Title=%s, Round=%d, 耗时=%s", draft.Titles[0], req.RevisionRound, time.Since(start).Round(time.Millisecond))
	return draft, nil
}

var _ types.ContentGenerator = (*Generator)(nil)
