package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/LENAX/content-pipeline/pkg/core/types"
)

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

var defaultTags = []string{"理财", "银行", "财经"}

type draftPayload struct {
	Title        string   `json:"title"`
	Titles       []string `json:"titles"`
	Body         string   `json:"body"`
	Tags         []string `json:"tags"`
	ImagePrompts []string `json:"image_prompts"`
}

// parseDraft 解析模型输出；整体不是JSON时提取第一个 { 到最后一个 } 之间的内容
func parseDraft(text, topicTitle string) (*types.Draft, error) {
	var payload draftPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		match := jsonObjectPattern.FindString(text)
		if match == "" {
			return nil, fmt.Errorf("无法解析模型返回的JSON: %w", types.ErrGenerationError)
		}
		if err := json.Unmarshal([]byte(match), &payload); err != nil {
			return nil, fmt.Errorf("无法解析模型返回的JSON: %v: %w", err, types.ErrGenerationError)
		}
	}

	titles := compact(payload.Titles)
	if title := strings.TrimSpace(payload.Title); title != "" {
		titles = append([]string{title}, titles...)
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("返回结果缺少title字段: %w", types.ErrGenerationError)
	}
	body := strings.TrimSpace(payload.Body)
	if body == "" {
		return nil, fmt.Errorf("返回结果缺少body字段: %w", types.ErrGenerationError)
	}

	tags := compact(payload.Tags)
	if len(tags) == 0 {
		tags = append([]string(nil), defaultTags...)
	}
	prompts := compact(payload.ImagePrompts)
	if len(prompts) == 0 {
		subject := topicTitle
		if subject == "" {
			subject = "理财"
		}
		prompts = []string{
			fmt.Sprintf("小红书风格插画，关于%s的主题图", subject),
			"银行小姐姐讲解理财知识的专业插图",
		}
	}

	return &types.Draft{
		Titles:       titles,
		Body:         body,
		Tags:         tags,
		ImagePrompts: prompts,
	}, nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
