package trending

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// BoardSelectors HTML热榜的CSS选择器
type BoardSelectors struct {
	Item  string // 每个条目
	Title string // 条目内的标题
	Score string // 条目内的热度值
}

// BoardSource 抓取HTML热榜页面（默认百度实时热榜）
type BoardSource struct {
	name      string
	url       string
	selectors BoardSelectors
	client    *http.Client
}

// NewBoardSource 创建HTML热榜来源
func NewBoardSource(name, endpoint string, selectors BoardSelectors, timeout time.Duration) *BoardSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if name == "" {
		name = "baidu"
	}
	return &BoardSource{
		name:      name,
		url:       endpoint,
		selectors: selectors,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name 来源名称
func (s *BoardSource) Name() string {
	return s.name
}

// Discover 实现 types.TopicSource
func (s *BoardSource) Discover(ctx context.Context, count int) ([]workflow.TopicCandidate, error) {
	raw, err := fetch(ctx, s.client, s.url)
	if err != nil {
		return nil, fmt.Errorf("%s热榜请求失败: %w", s.name, err)
	}

	out, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s热榜为空: %w", s.name, types.ErrSourceUnavailable)
	}

	log.Printf("✅ [Trending] %s热榜抓取成功: %d条", s.name, len(out))
	return limit(out, count), nil
}

func (s *BoardSource) parse(raw []byte) ([]workflow.TopicCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("解析%s热榜页面失败: %w", s.name, err)
	}
	base, _ := url.Parse(s.url)

	var out []workflow.TopicCandidate
	doc.Find(s.selectors.Item).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if len(out) >= maxBoardItems {
			return false
		}
		title := strings.TrimSpace(item.Find(s.selectors.Title).First().Text())
		if title == "" {
			return true
		}
		candidate := workflow.TopicCandidate{
			Title:  title,
			Source: s.name,
			Score:  normalizeScore(parseHotValue(item.Find(s.selectors.Score).First().Text())),
			Rank:   len(out) + 1,
		}
		if href, ok := item.Find("a").First().Attr("href"); ok && href != "" {
			candidate.URL = resolveURL(base, href)
		}
		out = append(out, candidate)
		return true
	})
	return out, nil
}

// parseHotValue 提取文本中的数字（忽略逗号和空白）
func parseHotValue(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return v
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
