package workflow

// Step 流水线步骤枚举（对外导出）
type Step string

const (
	// StepResearch 热点调研（初始步骤）
	StepResearch Step = "research"
	// StepTopicCompliance 选题合规检查
	StepTopicCompliance Step = "topic_compliance"
	// StepCreate 内容创作
	StepCreate Step = "create"
	// StepContentCompliance 内容合规复核
	StepContentCompliance Step = "content_compliance"
	// StepReview 人工审核（唯一挂起点）
	StepReview Step = "review"
	// StepPublish 发布
	StepPublish Step = "publish"
	// StepAnalytics 数据分析（最后一步）
	StepAnalytics Step = "analytics"

	// StepSuspended 伪状态：等待外部决策
	StepSuspended Step = "suspended"
	// StepTerminated 伪状态：已终止
	StepTerminated Step = "terminated"
)

// Steps 按流水线顺序返回所有真实步骤
func Steps() []Step {
	return []Step{
		StepResearch,
		StepTopicCompliance,
		StepCreate,
		StepContentCompliance,
		StepReview,
		StepPublish,
		StepAnalytics,
	}
}

// IsValid 检查是否为可执行步骤（对外导出）
func (s Step) IsValid() bool {
	switch s {
	case StepResearch,
		StepTopicCompliance,
		StepCreate,
		StepContentCompliance,
		StepReview,
		StepPublish,
		StepAnalytics:
		return true
	default:
		return false
	}
}

// IsPseudo 是否为伪状态
func (s Step) IsPseudo() bool {
	return s == StepSuspended || s == StepTerminated
}

// OutcomeStatus 实例运行结果（对外导出）
type OutcomeStatus string

const (
	OutcomeRunning           OutcomeStatus = "running"            // 仍在执行（仅用于状态查询）
	OutcomeSuspended         OutcomeStatus = "suspended"          // 等待人工审核
	OutcomePublished         OutcomeStatus = "published"          // 发布并分析完成
	OutcomeBlocked           OutcomeStatus = "blocked"            // 选题合规拦截
	OutcomeRejected          OutcomeStatus = "rejected"           // 人工拒绝
	OutcomeRevisionExhausted OutcomeStatus = "revision_exhausted" // 修改次数耗尽
	OutcomeFailed            OutcomeStatus = "failed"             // 执行失败
)

// IsTerminal 是否为终态
func (o OutcomeStatus) IsTerminal() bool {
	switch o {
	case OutcomePublished, OutcomeBlocked, OutcomeRejected, OutcomeRevisionExhausted, OutcomeFailed:
		return true
	default:
		return false
	}
}

// IsFailure 是否为失败结果
func (o OutcomeStatus) IsFailure() bool {
	return o == OutcomeFailed
}
