package workflow

import (
	"encoding/json"
	"time"
)

// ReviewDecision 人工审核结论（空字符串表示等待外部决策）
type ReviewDecision string

const (
	DecisionPending  ReviewDecision = ""         // 等待审核
	DecisionApproved ReviewDecision = "approved" // 通过
	DecisionRevision ReviewDecision = "revision" // 修改后重审
	DecisionRejected ReviewDecision = "rejected" // 拒绝
)

// IsValid 判断是否为可被外部提交的审核结论
func (d ReviewDecision) IsValid() bool {
	switch d {
	case DecisionApproved, DecisionRevision, DecisionRejected:
		return true
	default:
		return false
	}
}

// ComplianceStatus 合规结论
type ComplianceStatus string

const (
	CompliancePass  ComplianceStatus = "PASS"
	ComplianceBlock ComplianceStatus = "BLOCK"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// TopicCandidate 热点候选（对外导出）
type TopicCandidate struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary,omitempty"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	URL     string  `json:"url,omitempty"`
	Rank    int     `json:"rank,omitempty"`
}

// ImageResult 生成的配图
type ImageResult struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

// Content 创作草稿
type Content struct {
	Titles       []string      `json:"titles"`
	Body         string        `json:"body"`
	Tags         []string      `json:"tags,omitempty"`
	ImagePrompts []string      `json:"image_prompts,omitempty"`
	Images       []ImageResult `json:"images,omitempty"`
}

// PrimaryTitle 返回第一个标题
func (c *Content) PrimaryTitle() string {
	if c == nil || len(c.Titles) == 0 {
		return ""
	}
	return c.Titles[0]
}

// ComplianceVerdict 合规检查结果
type ComplianceVerdict struct {
	Status      ComplianceStatus `json:"status"`
	RiskLevel   RiskLevel        `json:"risk_level"`
	Issues      []string         `json:"issues,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// Blocked 是否被拦截
func (v *ComplianceVerdict) Blocked() bool {
	return v != nil && v.Status == ComplianceBlock
}

// PublishResult 发布结果
type PublishResult struct {
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
}

// WorkflowState 单个工作流实例的完整状态（对外导出）
// 同一时刻只允许一个执行者持有并修改
type WorkflowState struct {
	WorkflowID       string             `json:"workflow_id"`
	UserID           string             `json:"user_id"`
	HotTopics        []TopicCandidate   `json:"hot_topics,omitempty"`
	SelectedTopic    *TopicCandidate    `json:"selected_topic,omitempty"`
	Content          *Content           `json:"content,omitempty"`
	ComplianceResult *ComplianceVerdict `json:"compliance_result,omitempty"`
	ReviewDecision   ReviewDecision     `json:"review_decision,omitempty"`
	RevisionNotes    string             `json:"revision_notes,omitempty"`
	RevisionRound    int                `json:"revision_round"`
	Published        bool               `json:"published"`
	PublishResult    *PublishResult     `json:"publish_result,omitempty"`
	Error            string             `json:"error,omitempty"`
	RecentTopics     []string           `json:"recent_topics,omitempty"`
	CurrentStep      Step               `json:"current_step"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// NewWorkflowState 创建初始状态（所有可选字段为空，revision_round=0）
func NewWorkflowState(workflowID, userID string, recentTopics []string) *WorkflowState {
	now := time.Now()
	return &WorkflowState{
		WorkflowID:   workflowID,
		UserID:       userID,
		RecentTopics: append([]string(nil), recentTopics...),
		CurrentStep:  StepResearch,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Failed 是否已处于失败终态
func (s *WorkflowState) Failed() bool {
	return s.Error != ""
}

// Clone 深拷贝状态，步骤函数只在副本上修改
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	c.HotTopics = append([]TopicCandidate(nil), s.HotTopics...)
	c.RecentTopics = append([]string(nil), s.RecentTopics...)
	if s.SelectedTopic != nil {
		t := *s.SelectedTopic
		c.SelectedTopic = &t
	}
	if s.Content != nil {
		ct := Content{
			Titles:       append([]string(nil), s.Content.Titles...),
			Body:         s.Content.Body,
			Tags:         append([]string(nil), s.Content.Tags...),
			ImagePrompts: append([]string(nil), s.Content.ImagePrompts...),
			Images:       append([]ImageResult(nil), s.Content.Images...),
		}
		c.Content = &ct
	}
	if s.ComplianceResult != nil {
		v := ComplianceVerdict{
			Status:      s.ComplianceResult.Status,
			RiskLevel:   s.ComplianceResult.RiskLevel,
			Issues:      append([]string(nil), s.ComplianceResult.Issues...),
			Suggestions: append([]string(nil), s.ComplianceResult.Suggestions...),
		}
		c.ComplianceResult = &v
	}
	if s.PublishResult != nil {
		p := *s.PublishResult
		c.PublishResult = &p
	}
	return &c
}

// Marshal 序列化为JSON（用于快照持久化）
func (s *WorkflowState) Marshal() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalState 从JSON恢复状态
func UnmarshalState(data string) (*WorkflowState, error) {
	var s WorkflowState
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
