package dto

import "github.com/LENAX/content-pipeline/pkg/core/workflow"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	InFlight  int    `json:"in_flight"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 分页列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// NewListResponse 创建分页列表响应
func NewListResponse[T any](items []T, total, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{
		Total:   total,
		Items:   items,
		HasMore: offset+len(items) < total,
	}
}

// StartWorkflowResponse 异步启动响应
type StartWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
}

// GraphResponse 步骤图
type GraphResponse struct {
	Steps   []workflow.Step `json:"steps"`
	Edges   []workflow.Edge `json:"edges"`
	Mermaid string          `json:"mermaid"`
}
