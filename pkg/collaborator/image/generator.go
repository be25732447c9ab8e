// Package image 调用方舟图像生成接口（OpenAI 兼容 /images/generations）为草稿配图
package image

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

const defaultMaxImages = 2

// Config 配图生成配置
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string // 图像模型接入点
	Size      string // 如 1024x1024
	MaxImages int    // 每篇最多生成几张
}

// Generator 配图生成器（对外导出）
type Generator struct {
	client *openai.Client
	cfg    Config
}

// NewGenerator 创建配图生成器，APIKey和Model必填
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, errors.New("image api_key and model are required")
	}
	if cfg.Size == "" {
		cfg.Size = openai.CreateImageSize1024x1024
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = defaultMaxImages
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Generator{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Generate 实现 types.ImageGenerator
// 并发生成前 MaxImages 张，单张失败只记录日志；全部失败时返回错误
func (g *Generator) Generate(ctx context.Context, prompts []string, ownerID string) ([]workflow.ImageResult, error) {
	if len(prompts) > g.cfg.MaxImages {
		prompts = prompts[:g.cfg.MaxImages]
	}
	if len(prompts) == 0 {
		return nil, nil
	}

	results := make([]*workflow.ImageResult, len(prompts))
	errs := make([]error, len(prompts))
	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()
			results[i], errs[i] = g.generateOne(ctx, prompt)
		}(i, prompt)
	}
	wg.Wait()

	images := make([]workflow.ImageResult, 0, len(prompts))
	for i, res := range results {
		if errs[i] != nil {
			log.Printf("⚠️ [Image] 配图生成失败: Owner=%s, 第%d张, Error=%v", ownerID, i+1, errs[i])
			continue
		}
		images = append(images, *res)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("配图全部生成失败: %w", errors.Join(errs...))
	}

	log.Printf("✅ [Image] 配图生成完成: Owner=%s, %d/%d张", ownerID, len(images), len(prompts))
	return images, nil
}

func (g *Generator) generateOne(ctx context.Context, prompt string) (*workflow.ImageResult, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.cfg.Model,
		Size:           g.cfg.Size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("接口未返回图片地址")
	}
	return &workflow.ImageResult{Prompt: prompt, URL: resp.Data[0].URL}, nil
}

var _ types.ImageGenerator = (*Generator)(nil)
