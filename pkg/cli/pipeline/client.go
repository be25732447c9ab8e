// Package pipeline 内容流水线HTTP API客户端
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LENAX/content-pipeline/pkg/api/dto"
	"github.com/LENAX/content-pipeline/pkg/core/engine"
	"github.com/LENAX/content-pipeline/pkg/core/realtime"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// Client HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// 同步执行和批量执行可能持续数分钟
			Timeout: 10 * time.Minute,
		},
	}
}

// ========== Workflow API ==========

// StartWorkflow 异步启动实例
func (c *Client) StartWorkflow(ctx context.Context, userID string, recentTopics []string) (string, error) {
	var resp dto.APIResponse[dto.StartWorkflowResponse]
	req := dto.StartWorkflowRequest{UserID: userID, RecentTopics: recentTopics}
	if err := c.post(ctx, "/api/v1/workflows", req, &resp); err != nil {
		return "", err
	}
	return resp.Data.WorkflowID, nil
}

// RunWorkflow 同步执行实例直到挂起或终止
func (c *Client) RunWorkflow(ctx context.Context, userID string, recentTopics []string) (*workflow.InstanceOutcome, error) {
	var resp dto.APIResponse[workflow.InstanceOutcome]
	req := dto.StartWorkflowRequest{UserID: userID, RecentTopics: recentTopics, Wait: true}
	if err := c.post(ctx, "/api/v1/workflows", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// StartBatch 批量执行
func (c *Client) StartBatch(ctx context.Context, userID string, count int) (*workflow.BatchResult, error) {
	var resp dto.APIResponse[workflow.BatchResult]
	if err := c.post(ctx, "/api/v1/workflows/batch", dto.BatchRequest{UserID: userID, Count: count}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ListWorkflows 分页查询实例
func (c *Client) ListWorkflows(ctx context.Context, query dto.ListWorkflowsQuery) (*dto.ListResponse[workflow.StatusView], error) {
	params := url.Values{}
	setParam(params, "status", query.Status)
	setParam(params, "user_id", query.UserID)
	setIntParam(params, "limit", query.Limit)
	setIntParam(params, "offset", query.Offset)

	var resp dto.APIResponse[dto.ListResponse[workflow.StatusView]]
	if err := c.get(ctx, withQuery("/api/v1/workflows", params), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetWorkflow 查询实例状态
func (c *Client) GetWorkflow(ctx context.Context, id string) (*workflow.StatusView, error) {
	var resp dto.APIResponse[workflow.StatusView]
	if err := c.get(ctx, "/api/v1/workflows/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Review 提交审核结论
func (c *Client) Review(ctx context.Context, id string, req dto.ReviewRequest) (*workflow.InstanceOutcome, error) {
	var resp dto.APIResponse[workflow.InstanceOutcome]
	if err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(id)+"/review", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// WorkflowLogs 查询实例执行记录
func (c *Client) WorkflowLogs(ctx context.Context, id string) ([]workflow.ExecutionRecord, error) {
	var resp dto.APIResponse[dto.ListResponse[workflow.ExecutionRecord]]
	if err := c.get(ctx, "/api/v1/workflows/"+url.PathEscape(id)+"/logs", &resp); err != nil {
		return nil, err
	}
	return resp.Data.Items, nil
}

// Graph 查询步骤图
func (c *Client) Graph(ctx context.Context) (*dto.GraphResponse, error) {
	var resp dto.APIResponse[dto.GraphResponse]
	if err := c.get(ctx, "/api/v1/workflows/graph", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ========== Logs API ==========

// ListLogs 按条件查询执行记录
func (c *Client) ListLogs(ctx context.Context, query dto.LogsQuery) (*dto.ListResponse[workflow.ExecutionRecord], error) {
	params := url.Values{}
	setParam(params, "workflow_id", query.WorkflowID)
	setParam(params, "step", query.Step)
	setParam(params, "status", query.Status)
	setIntParam(params, "limit", query.Limit)
	setIntParam(params, "offset", query.Offset)

	var resp dto.APIResponse[dto.ListResponse[workflow.ExecutionRecord]]
	if err := c.get(ctx, withQuery("/api/v1/logs", params), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ========== Scheduler API ==========

// SchedulerStatus 调度器状态
func (c *Client) SchedulerStatus(ctx context.Context) (*engine.SchedulerStatus, error) {
	var resp dto.APIResponse[engine.SchedulerStatus]
	if err := c.get(ctx, "/api/v1/scheduler/status", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ListJobs 定时任务列表
func (c *Client) ListJobs(ctx context.Context) ([]engine.JobInfo, error) {
	var resp dto.APIResponse[dto.ListResponse[engine.JobInfo]]
	if err := c.get(ctx, "/api/v1/scheduler/jobs", &resp); err != nil {
		return nil, err
	}
	return resp.Data.Items, nil
}

// RunJob 手动触发定时任务
func (c *Client) RunJob(ctx context.Context, name string) (*engine.JobExecution, error) {
	var resp dto.APIResponse[engine.JobExecution]
	if err := c.post(ctx, "/api/v1/scheduler/jobs/"+url.PathEscape(name)+"/run", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// JobExecutions 定时任务执行记录
func (c *Client) JobExecutions(ctx context.Context, limit int) ([]engine.JobExecution, error) {
	params := url.Values{}
	setIntParam(params, "limit", limit)

	var resp dto.APIResponse[dto.ListResponse[engine.JobExecution]]
	if err := c.get(ctx, withQuery("/api/v1/scheduler/executions", params), &resp); err != nil {
		return nil, err
	}
	return resp.Data.Items, nil
}

// ========== Stats API ==========

// Overview 实例统计概览
func (c *Client) Overview(ctx context.Context) (*engine.Overview, error) {
	var resp dto.APIResponse[engine.Overview]
	if err := c.get(ctx, "/api/v1/stats/overview", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ========== Health API ==========

// Health 健康检查
func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ========== Events ==========

// Watch 订阅事件流，ctx 取消或连接断开时返回
func (c *Client) Watch(ctx context.Context, workflowID string, fn func(*realtime.WorkflowEvent)) error {
	u, err := url.Parse(c.baseURL + "/api/v1/events")
	if err != nil {
		return fmt.Errorf("无效的服务器地址: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if workflowID != "" {
		u.RawQuery = url.Values{"workflow_id": {workflowID}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("连接事件流失败: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var ev realtime.WorkflowEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("读取事件失败: %w", err)
		}
		fn(&ev)
	}
}

// ========== HTTP 辅助方法 ==========

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

// APIError 服务端返回的错误
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// IsNotFound 是否为404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr dto.APIResponse[any]
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}
	return nil
}

func setParam(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func setIntParam(params url.Values, key string, value int) {
	if value > 0 {
		params.Set(key, strconv.Itoa(value))
	}
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
