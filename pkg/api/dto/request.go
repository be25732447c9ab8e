package dto

// StartWorkflowRequest 启动实例请求
type StartWorkflowRequest struct {
	UserID       string   `json:"user_id" binding:"required"`
	RecentTopics []string `json:"recent_topics" binding:"omitempty"`
	Wait         bool     `json:"wait"` // true: 同步执行到挂起或终止后返回
}

// BatchRequest 批量执行请求
type BatchRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Count  int    `json:"count" binding:"required,min=1"`
}

// ReviewRequest 提交审核结论请求
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approved revision rejected"`
	Notes    string `json:"notes"`
	Version  int    `json:"version" binding:"omitempty,min=0"` // 0 表示不做版本校验
}

// ListWorkflowsQuery 实例列表查询
type ListWorkflowsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=running suspended resumed terminated"`
	UserID string `form:"user_id"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// LogsQuery 执行记录查询
type LogsQuery struct {
	WorkflowID string `form:"workflow_id"`
	Step       string `form:"step"`
	Status     string `form:"status" binding:"omitempty,oneof=RUNNING SUCCESS FAILED BLOCKED PENDING"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset     int    `form:"offset" binding:"omitempty,min=0"`
}

// ExecutionsQuery 定时任务执行记录查询
type ExecutionsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// GetDefaultLimit 获取默认limit
func (q *ListWorkflowsQuery) GetDefaultLimit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

// GetDefaultLimit 获取默认limit
func (q *LogsQuery) GetDefaultLimit() int {
	if q.Limit <= 0 {
		return 50
	}
	return q.Limit
}

// GetDefaultLimit 获取默认limit
func (q *ExecutionsQuery) GetDefaultLimit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}
