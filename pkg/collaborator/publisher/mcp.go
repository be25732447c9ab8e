// Package publisher 实现发布目标：小红书 MCP 服务与本地演练
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// PublishToolName MCP 服务端的发布工具
const PublishToolName = "publish_content"

var (
	successMarkers = []string{"成功", "发布完成", "✅", "note_id"}
	failureMarkers = []string{"失败", "错误", "❌"}
	noteIDPattern  = regexp.MustCompile(`note_id["'\s:：=]*([A-Za-z0-9_-]+)`)
)

// MCPPublisher 通过 MCP Streamable HTTP 调用 publish_content（对外导出）
// 会话懒加载，调用出错后丢弃会话，下次重新初始化
type MCPPublisher struct {
	url     string
	timeout time.Duration

	mu     sync.Mutex
	client *client.Client
}

// NewMCPPublisher 创建MCP发布器
func NewMCPPublisher(url string, timeout time.Duration) (*MCPPublisher, error) {
	if url == "" {
		return nil, errors.New("mcp url is required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &MCPPublisher{url: url, timeout: timeout}, nil
}

// session 返回已初始化的客户端
func (p *MCPPublisher) session(ctx context.Context) (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	c, err := client.NewStreamableHttpClient(p.url, transport.WithHTTPTimeout(p.timeout))
	if err != nil {
		return nil, fmt.Errorf("创建MCP客户端失败: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("启动MCP客户端失败: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "content-pipeline", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("MCP会话初始化失败: %w", err)
	}

	log.Printf("✅ [MCP] 会话已初始化: %s", p.url)
	p.client = c
	return c, nil
}

// reset 丢弃当前会话
func (p *MCPPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
}

// Publish 实现 types.PublishTarget
// 传输错误返回 error；工具返回失败文本时返回 Success=false
func (p *MCPPublisher) Publish(ctx context.Context, req types.PublishRequest) (*workflow.PublishResult, error) {
	c, err := p.session(ctx)
	if err != nil {
		return nil, err
	}

	images := req.Images
	if images == nil {
		images = []string{}
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: PublishToolName,
			Arguments: map[string]interface{}{
				"title":   req.Title,
				"content": req.Body,
				"images":  images,
				"tags":    tags,
			},
		},
	})
	if err != nil {
		p.reset()
		return nil, fmt.Errorf("调用%s失败: %w", PublishToolName, err)
	}

	result := interpretResult(res)
	if result.Success {
		log.Printf("✅ [MCP] 发布成功: WorkflowID=%s, NoteID=%s", req.WorkflowID, result.ID)
	} else {
		log.Printf("❌ [MCP] 发布失败: WorkflowID=%s, Error=%s", req.WorkflowID, result.Error)
	}
	return result, nil
}

// interpretResult 根据返回文本判断是否发布成功；无法判断时按失败处理
func interpretResult(res *mcp.CallToolResult) *workflow.PublishResult {
	text := resultText(res)
	if res.IsError {
		if text == "" {
			text = "publish tool returned error"
		}
		return &workflow.PublishResult{Success: false, Error: text}
	}

	if containsAny(text, successMarkers) {
		out := &workflow.PublishResult{Success: true}
		if m := noteIDPattern.FindStringSubmatch(text); len(m) == 2 {
			out.ID = m[1]
		}
		return out
	}
	if containsAny(text, failureMarkers) {
		return &workflow.PublishResult{Success: false, Error: text}
	}
	if text == "" {
		text = "发布状态未知，请手动检查"
	}
	return &workflow.PublishResult{Success: false, Error: text}
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Ping 检查MCP服务是否可用
func (p *MCPPublisher) Ping(ctx context.Context) error {
	c, err := p.session(ctx)
	if err != nil {
		return err
	}
	if err := c.Ping(ctx); err != nil {
		p.reset()
		return fmt.Errorf("MCP服务不可用: %w", err)
	}
	return nil
}

// Close 关闭会话
func (p *MCPPublisher) Close() error {
	p.reset()
	return nil
}

var _ types.PublishTarget = (*MCPPublisher)(nil)
