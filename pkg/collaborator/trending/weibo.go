// Package trending 实现热点来源：微博热搜接口、HTML 热榜页面，以及合并与缓存
package trending

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxBoardItems    = 50
	hotScoreDivisor  = 50000.0
	minHotScore      = 50.0
	maxHotScore      = 100.0
)

// normalizeScore 将原始热度值归一化到 [50, 100]
func normalizeScore(raw float64) float64 {
	score := raw / hotScoreDivisor
	if score < minHotScore {
		score = minHotScore
	}
	if score > maxHotScore {
		score = maxHotScore
	}
	return float64(int(score))
}

// WeiboSource 微博热搜
type WeiboSource struct {
	url    string
	client *http.Client
}

// NewWeiboSource 创建微博热搜来源，timeout <= 0 时使用10秒
func NewWeiboSource(endpoint string, timeout time.Duration) *WeiboSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WeiboSource{url: endpoint, client: &http.Client{Timeout: timeout}}
}

type weiboResponse struct {
	Data struct {
		Realtime []struct {
			Word     string  `json:"word"`
			Note     string  `json:"note"`
			RawHot   float64 `json:"raw_hot"`
			Rank     int     `json:"rank"`
			Category string  `json:"category"`
		} `json:"realtime"`
	} `json:"data"`
}

// Name 来源名称
func (s *WeiboSource) Name() string {
	return "weibo"
}

// Discover 实现 types.TopicSource
func (s *WeiboSource) Discover(ctx context.Context, count int) ([]workflow.TopicCandidate, error) {
	raw, err := fetch(ctx, s.client, s.url)
	if err != nil {
		return nil, fmt.Errorf("微博热搜请求失败: %w", err)
	}

	var resp weiboResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("解析微博热搜失败: %w", err)
	}

	items := resp.Data.Realtime
	if len(items) > maxBoardItems {
		items = items[:maxBoardItems]
	}
	out := make([]workflow.TopicCandidate, 0, len(items))
	for i, item := range items {
		title := strings.TrimSpace(item.Word)
		if title == "" {
			continue
		}
		rank := item.Rank
		if rank <= 0 {
			rank = i + 1
		}
		out = append(out, workflow.TopicCandidate{
			Title:   title,
			Summary: item.Category,
			Source:  s.Name(),
			Score:   normalizeScore(item.RawHot),
			URL:     "https://s.weibo.com/weibo?q=" + url.QueryEscape(title),
			Rank:    rank,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("微博热搜为空: %w", types.ErrSourceUnavailable)
	}

	log.Printf("✅ [Trending] 微博热搜抓取成功: %d条", len(out))
	return limit(out, count), nil
}

// fetch 发送GET请求，非200视为失败
func fetch(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func limit(items []workflow.TopicCandidate, count int) []workflow.TopicCandidate {
	if count > 0 && len(items) > count {
		return items[:count]
	}
	return items
}
